package internal

// reassembly is the single-slot fragment accumulator. Control frames never
// pass through it.
type reassembly struct {
	active bool
	kind   FrameKind // KindText or KindBinary, from the opening Fragment
	buf    []byte
}

// push feeds one fragment-class frame into the slot. When a Finish
// completes a message it returns the whole Text/Binary frame and ok=true.
// Violations come back as *FrameParseError with close code 1002.
func (r *reassembly) push(f Frame) (Frame, bool, error) {
	switch f.Kind {
	case KindFragment:
		if r.active {
			return Frame{}, false, &FrameParseError{
				Reason: "Endpoint tried to start a fragment without finishing another",
				Code:   StatusProtocolError,
			}
		}
		r.active = true
		r.kind = f.DataKind
		r.buf = append([]byte(nil), f.Payload...)
		return Frame{}, false, nil

	case KindContinuation:
		if !r.active {
			return Frame{}, false, &FrameParseError{
				Reason: "Endpoint sent a continuation frame without starting a fragment",
				Code:   StatusProtocolError,
			}
		}
		r.buf = append(r.buf, f.Payload...)
		return Frame{}, false, nil

	case KindFinish:
		if !r.active {
			return Frame{}, false, &FrameParseError{
				Reason: "Endpoint sent a continuation frame without starting a fragment",
				Code:   StatusProtocolError,
			}
		}
		whole := Frame{Kind: r.kind, Payload: append(r.buf, f.Payload...)}
		r.reset()
		return whole, true, nil

	default:
		// A whole Text/Binary frame may not interleave with fragments of a
		// message in progress.
		if r.active {
			return Frame{}, false, &FrameParseError{
				Reason: "Endpoint sent a data frame while a fragmented message was in progress",
				Code:   StatusProtocolError,
			}
		}
		return f, true, nil
	}
}

func (r *reassembly) reset() {
	r.active = false
	r.buf = nil
}

package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"wsline/pkg/wsline"
)

// echoHandler prints whatever the server sends and logs disconnects; the
// default behavior answers pings.
type echoHandler struct {
	wsline.DefaultHandler
}

func (h *echoHandler) OnConnect(c *wsline.Conn) error {
	log.Printf("connected to %s", c.URL.Host)
	return nil
}

func (h *echoHandler) OnFrame(f wsline.Frame) wsline.Reply {
	switch f.Kind {
	case wsline.KindText:
		log.Printf("<- text: %s", f.Payload)
	default:
		log.Printf("<- %s: % x", f.Kind, f.Payload)
	}
	return wsline.Continue()
}

func (h *echoHandler) OnDisconnect(reason wsline.CloseReason) wsline.Reply {
	log.Printf("disconnected: %s", reason)
	return wsline.Continue()
}

func main() {
	var urlFlag string
	var cfgPath string
	var metricsAddr string
	flag.StringVar(&urlFlag, "url", "ws://127.0.0.1:8080/", "websocket url (ws:// or wss://)")
	flag.StringVar(&cfgPath, "c", "", "optional YAML options path")
	flag.StringVar(&metricsAddr, "metrics", "", "metrics listen address, e.g. :9100")
	flag.Parse()

	var opts *wsline.Options
	if cfgPath != "" {
		var err error
		opts, err = wsline.LoadOptions(cfgPath)
		if err != nil {
			log.Fatalf("options: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if metricsAddr != "" {
		wsline.EnableMetrics()
		go func() {
			if err := wsline.StartMetricsServer(ctx, metricsAddr); err != nil {
				log.Printf("metrics server stopped: %v", err)
			}
		}()
		log.Printf("metrics listening on %s", metricsAddr)
	}

	sess, err := wsline.Start(ctx, urlFlag, &echoHandler{}, opts)
	if err != nil {
		log.Fatalf("connect %s: %v", urlFlag, err)
	}

	// Graceful shutdown
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Printf("shutting down...")
		_ = sess.Shutdown()
	}()

	// Forward stdin lines as text frames until EOF or termination.
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			if err := sess.Send(wsline.Text(sc.Text())); err != nil {
				log.Printf("send: %v", err)
				return
			}
		}
	}()

	if err := sess.Wait(); err != nil {
		log.Fatalf("session ended: %v", err)
	}
	log.Printf("session closed")
}

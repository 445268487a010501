package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"mayadap/pkg/handlers"
	"mayadap/pkg/mayacmd"
)

func main() {
	// -----------------------------------------------
	// Command-line flags
	// -----------------------------------------------
	var showHelp bool
	flag.BoolVar(&showHelp, "help", false, "mayadap bridges an editor's DAP debugger to debugpy injected into a running Maya session (alias: -h)")
	var listenPort int
	flag.IntVar(&listenPort, "p", 60000, "port mayadap listens on for the editor's debugger")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Mayadap is a DAP relay for debugging Python inside Maya\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options]\n\n", os.Args[0])
		flag.PrintDefaults()
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		return
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	addr := fmt.Sprintf(":%d", listenPort)
	log.Printf("Starting mayadap on %s", addr)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatal(fmt.Errorf("could not start mayadap: %w", err))
	}
	defer listener.Close()

	// Handle shutdown signals only
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-ch
		log.Println("Received shutdown signal...")
		log.Println("Shutting down...")
		_ = listener.Close()
		os.Exit(0)
	}()

	// An unreachable Maya command port leaves no way to proceed; the session
	// surfaces the remediation guidance to the debugger before this runs.
	fatal := func(err error) {
		log.Printf("Fatal: %v", err)
		os.Exit(1)
	}

	// One editor session at a time. The next connection is accepted once the
	// previous one ends, so the debugger can reconnect after a disconnect.
	for {
		clientTCP, err := listener.Accept()
		if err != nil {
			log.Printf("Error accepting connection: %v", err)
			continue
		}

		maya := mayacmd.NewClient()
		handlers.Handle(clientTCP, maya, fatal)
		_ = maya.Close()
		log.Printf("Debugger session ended, waiting for a reconnection")
	}
}

func init() {
	log.SetOutput(os.Stdout)
}

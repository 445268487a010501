package relay

import (
	"encoding/json"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/google/go-dap"

	"mayadap/pkg/mayacmd"
)

const mayaConnectTimeout = 3 * time.Second

// attach bootstraps the debug session: connect to Maya's command port, inject
// the debugpy bootstrap, connect to debugpy, start relaying. Runs on its own
// goroutine so the debugger channel is never blocked.
//
// A Maya connect failure is unrecoverable and escalates to the fatal handler
// after the remediation guidance is surfaced in the debugger's output. Any
// later failure leaves the session inert but the process alive.
func (s *Session) attach(cfg *Config) {
	s.setRunDirective(mayacmd.FormatRunCode(cfg.Program))

	if err := s.maya.Connect(cfg.MayaHost, cfg.MayaPort, mayaConnectTimeout); err != nil {
		log.Printf("Error connecting to Maya command port: %v", err)
		s.emitRemediation(err)
		s.fatal(err)
		return
	}

	if err := s.maya.Submit(mayacmd.FormatAttachCode(cfg.EngineHost, cfg.EnginePort)); err != nil {
		log.Printf("Error injecting debug engine bootstrap: %v", err)
		return
	}
	log.Printf("Injected debug engine bootstrap into Maya")

	if err := s.ConnectEngine(net.JoinHostPort(cfg.EngineHost, strconv.Itoa(cfg.EnginePort))); err != nil {
		log.Printf("Error connecting to injected debug engine: %v", err)
		return
	}

	s.StartRelaying()
}

func (s *Session) setRunDirective(code string) {
	s.runMu.Lock()
	s.runCode = code
	s.runMu.Unlock()
}

// submitRunDirective submits the stored run directive to Maya exactly once,
// when the engine reports configuration is done.
func (s *Session) submitRunDirective() {
	s.runOnce.Do(func() {
		s.runMu.Lock()
		code := s.runCode
		s.runMu.Unlock()

		if code == "" {
			log.Printf("configurationDone before attach; no run directive stored")
			return
		}
		if err := s.maya.Submit(code); err != nil {
			log.Printf("Error submitting run directive to Maya: %v", err)
			return
		}
		log.Printf("Submitted run directive to Maya")
	})
}

type remediator interface {
	Remediation() string
}

// emitRemediation surfaces a fatal error in the debugger's own output
// surface, including the concrete command the user can run to fix it.
func (s *Session) emitRemediation(cause error) {
	text := cause.Error()
	if r, ok := cause.(remediator); ok {
		text = r.Remediation()
	}

	ev := &dap.OutputEvent{
		Event: dap.Event{
			ProtocolMessage: dap.ProtocolMessage{Seq: s.nextSeq(), Type: "event"},
			Event:           "output",
		},
		Body: dap.OutputEventBody{
			Category: "stderr",
			Output:   text,
		},
	}
	body, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Error marshaling output event: %v", err)
		return
	}
	if err := s.transport.Send(body); err != nil {
		log.Printf("Error sending remediation to debugger: %v", err)
	}
}

package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"github.com/google/go-dap"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// HandleDebuggerMessage inspects one inbound message from the editor's
// debugger and decides whether to answer it locally, rewrite it, or forward
// it unchanged toward the debug engine.
func (s *Session) HandleDebuggerMessage(body []byte) {
	msg := gjson.ParseBytes(body)
	seq := int(msg.Get("seq").Int())

	log.Printf("Debugger -> relay: %s", preview(body))

	switch msg.Get("command").String() {
	case "initialize":
		// The engine does not exist yet, so answer locally. The original
		// request is still queued so the engine initializes its own state
		// once it is connected.
		s.answerInitialize(seq)
		s.Enqueue(body)
	case "attach":
		rewritten, err := s.beginAttach(seq, body)
		if err != nil {
			log.Printf("Rejecting attach: %v", err)
			return
		}
		s.Enqueue(rewritten)
	default:
		s.Enqueue(body)
	}
}

// handleEngineMessage filters one message decoded off the engine socket
// before it reaches the editor.
func (s *Session) handleEngineMessage(body []byte) {
	msg := gjson.ParseBytes(body)

	if rs := msg.Get("request_seq"); rs.Exists() && s.answered(int(rs.Int())) {
		// Should only be the initialize request.
		log.Printf("Suppressing engine response already answered locally: %s", preview(body))
		return
	}

	if msg.Get("command").String() == "configurationDone" {
		// Debugger and engine are done setting up; run the user's program.
		s.submitRunDirective()
	}

	log.Printf("Debugger <- %s", preview(body))
	if err := s.transport.Send(body); err != nil {
		log.Printf("Error forwarding engine message to debugger: %v", err)
	}
}

func (s *Session) answerInitialize(seq int) {
	resp := &dap.InitializeResponse{
		Response: dap.Response{
			ProtocolMessage: dap.ProtocolMessage{Seq: s.nextSeq(), Type: "response"},
			RequestSeq:      seq,
			Success:         true,
			Command:         "initialize",
		},
		Body: dap.Capabilities{
			SupportsConfigurationDoneRequest:  true,
			SupportsConditionalBreakpoints:    true,
			SupportsHitConditionalBreakpoints: true,
			SupportsLogPoints:                 true,
			SupportsSetVariable:               true,
			SupportsEvaluateForHovers:         true,
			SupportsExceptionInfoRequest:      true,
			SupportsTerminateRequest:          true,
		},
	}

	body, err := json.Marshal(resp)
	if err != nil {
		log.Printf("Error marshaling initialize response: %v", err)
		return
	}

	s.markAnswered(seq)
	if err := s.transport.Send(body); err != nil {
		log.Printf("Error sending initialize response to debugger: %v", err)
	}
}

var errAlreadyAttached = errors.New("a debug session is already active")

// beginAttach captures the session configuration, starts the attach
// orchestrator on its own goroutine, and returns the attach request rewritten
// into the shape debugpy expects. A second attach is rejected outright rather
// than clobbering the live session.
func (s *Session) beginAttach(seq int, body []byte) ([]byte, error) {
	cfg := configFromAttach(body)

	s.mu.Lock()
	if s.config != nil {
		s.mu.Unlock()
		s.sendErrorResponse(seq, "attach", errAlreadyAttached.Error())
		return nil, errAlreadyAttached
	}
	s.config = cfg
	s.mu.Unlock()

	go s.attach(cfg)

	args, err := json.Marshal(engineAttachArguments(cfg))
	if err != nil {
		return nil, fmt.Errorf("marshal rewritten attach arguments: %w", err)
	}
	rewritten, err := sjson.SetRawBytes(body, "arguments", args)
	if err != nil {
		return nil, fmt.Errorf("rewrite attach arguments: %w", err)
	}

	log.Printf("Rewrote attach arguments: %s", args)
	return rewritten, nil
}

func configFromAttach(body []byte) *Config {
	args := gjson.GetBytes(body, "arguments")
	cfg := &Config{
		MayaHost:   args.Get("maya.host").String(),
		MayaPort:   int(args.Get("maya.port").Int()),
		EngineHost: args.Get("debugpy.host").String(),
		EnginePort: int(args.Get("debugpy.port").Int()),
		Program:    args.Get("program").String(),
	}
	// debugpy binds 127.0.0.1, not the localhost alias.
	if cfg.EngineHost == "localhost" {
		cfg.EngineHost = "127.0.0.1"
	}
	return cfg
}

// attachArguments is the attach request shape debugpy expects. Built from
// scratch so none of the Maya-specific fields leak through.
type attachArguments struct {
	Name           string        `json:"name"`
	Type           string        `json:"type"`
	Request        string        `json:"request"`
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	Program        string        `json:"program"`
	PathMappings   []pathMapping `json:"pathMappings"`
	JustMyCode     bool          `json:"justMyCode"`
	RedirectOutput bool          `json:"redirectOutput"`
}

type pathMapping struct {
	LocalRoot  string `json:"localRoot"`
	RemoteRoot string `json:"remoteRoot"`
}

func engineAttachArguments(cfg *Config) attachArguments {
	program := filepath.FromSlash(cfg.Program)
	dir := filepath.Dir(program)
	return attachArguments{
		Name:    "Maya Python Debugger: Remote Attach",
		Type:    "python",
		Request: "attach",
		Host:    cfg.EngineHost,
		Port:    cfg.EnginePort,
		Program: program,
		PathMappings: []pathMapping{
			{LocalRoot: dir, RemoteRoot: dir},
		},
		RedirectOutput: true,
	}
}

func (s *Session) sendErrorResponse(requestSeq int, command, message string) {
	resp := &dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: s.nextSeq(), Type: "response"},
		RequestSeq:      requestSeq,
		Command:         command,
		Success:         false,
		Message:         message,
	}
	body, err := json.Marshal(resp)
	if err != nil {
		log.Printf("Error marshaling error response: %v", err)
		return
	}
	if err := s.transport.Send(body); err != nil {
		log.Printf("Error sending error response to debugger: %v", err)
	}
}

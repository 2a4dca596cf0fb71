package natsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/nats-io/nats.go"

	"transit-planner/internal/planner"
	"transit-planner/internal/routing"
)

// RouteFinder is satisfied by *planner.Planner and *planner.Holder.
type RouteFinder interface {
	FindRoute(q planner.Query) (*routing.Journey, error)
}

type Metrics interface {
	NATSRequestInc()
	NATSReplyErrInc()
	NATSSetConnected(connected bool)
}

// Connect dials url and keeps the connected gauge in m current.
func Connect(url string, m Metrics) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("transit-planner"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return nc, nil
}

// Server answers planner.Request messages on a subject. Requests sent to
// "<subject>.<strategy>" use that strategy regardless of the body.
type Server struct {
	nc      *nats.Conn
	subject string
	finder  RouteFinder
	metrics Metrics
	subs    []*nats.Subscription
}

// Serve subscribes to subject and subject.* in queue group queue. An empty
// queue subscribes every instance to every request.
func Serve(nc *nats.Conn, subject, queue string, f RouteFinder, m Metrics) (*Server, error) {
	s := &Server{nc: nc, subject: subject, finder: f, metrics: m}
	for _, subj := range []string{subject, subject + ".*"} {
		sub, err := nc.QueueSubscribe(subj, queue, s.handle)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("subscribe %s: %w", subj, err)
		}
		s.subs = append(s.subs, sub)
	}
	log.Printf("nats serving route requests on %s (queue %q)", subject, queue)
	return s, nil
}

func (s *Server) Close() {
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.subs = nil
}

func (s *Server) handle(msg *nats.Msg) {
	if s.metrics != nil {
		s.metrics.NATSRequestInc()
	}
	strategy := ""
	if msg.Subject != s.subject {
		strategy = strings.TrimPrefix(msg.Subject, s.subject+".")
	}
	if msg.Reply == "" {
		log.Printf("nats request on %s without reply subject dropped", msg.Subject)
		return
	}
	if err := msg.Respond(Handle(s.finder, msg.Data, strategy)); err != nil {
		if s.metrics != nil {
			s.metrics.NATSReplyErrInc()
		}
		log.Printf("nats reply error: %v", err)
	}
}

// Handle decodes a JSON planner.Request, plans it and encodes the
// planner.Response. A non-empty strategy overrides the one in the body.
func Handle(f RouteFinder, data []byte, strategy string) []byte {
	var req planner.Request
	var resp planner.Response
	if err := json.Unmarshal(data, &req); err != nil {
		resp = planner.NewResponse(nil, fmt.Errorf("%w: %v", planner.ErrInvalidRequest, err))
	} else {
		if strategy != "" {
			req.Strategy = strategy
		}
		q, err := req.Query()
		if err != nil {
			resp = planner.NewResponse(nil, err)
		} else {
			resp = planner.NewResponse(f.FindRoute(q))
		}
	}
	b, err := json.Marshal(resp)
	if err != nil {
		b, _ = json.Marshal(planner.NewResponse(nil, err))
	}
	return b
}

// Request sends req to subject and waits for the reply.
func Request(ctx context.Context, nc *nats.Conn, subject string, req planner.Request) (planner.Response, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return planner.Response{}, err
	}
	msg, err := nc.RequestWithContext(ctx, subject, b)
	if err != nil {
		return planner.Response{}, err
	}
	var resp planner.Response
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return planner.Response{}, fmt.Errorf("decode reply: %w", err)
	}
	return resp, nil
}

// SubjectFor returns the subject that pins requests to strategy.
func SubjectFor(subject string, strategy routing.Strategy) string {
	if strategy == "" {
		return subject
	}
	return subject + "." + subjectToken(string(strategy))
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}

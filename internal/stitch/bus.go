package stitch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/loqalabs/loqa-tts/internal/bus"
	"github.com/loqalabs/loqa-tts/internal/protocol"
	"github.com/nats-io/nats.go"
)

// BusService answers stitch requests on protocol.SubjectStitchRequest.
// Replies carry the WAV bytes; failures reply with a JSON error body and
// the status and error headers set.
type BusService struct {
	svc    *Service
	bus    *bus.Client
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

func NewBusService(parent context.Context, svc *Service, busClient *bus.Client, log *slog.Logger) *BusService {
	ctx, cancel := context.WithCancel(parent)
	return &BusService{
		svc:    svc,
		bus:    busClient,
		ctx:    ctx,
		cancel: cancel,
		logger: log.With(slog.String("component", "stitch-bus")),
	}
}

func (s *BusService) Start() error {
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectStitchRequest, s.handleRequest)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	return nil
}

// Close cancels in-flight requests and waits for their replies. Messages
// delivered after Close are dropped.
func (s *BusService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	s.wg.Wait()
}

func (s *BusService) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.sub != nil && s.sub.IsValid()
}

func (s *BusService) handleRequest(msg *nats.Msg) {
	if msg.Reply == "" {
		s.logger.Warn("dropping stitch request without reply subject")
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug("dropping stitch request after close")
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()

		resp := s.svc.Handle(s.ctx, "nats", msg.Data)
		reply := nats.NewMsg(msg.Reply)
		reply.Header.Set(protocol.HeaderRequestID, resp.RequestID)

		status := resp.Status()
		errMessage := ""
		if resp.Err != nil {
			errMessage = resp.Err.Error()
		} else if limit := s.bus.Conn().MaxPayload(); int64(len(resp.Audio)) > limit {
			status = http.StatusInternalServerError
			errMessage = fmt.Sprintf("stitched audio of %d bytes exceeds the bus max payload of %d bytes", len(resp.Audio), limit)
		}

		reply.Header.Set(protocol.HeaderStatus, strconv.Itoa(status))
		if errMessage != "" {
			reply.Header.Set(protocol.HeaderError, errMessage)
			if data, err := json.Marshal(protocol.ErrorResponse{Error: errMessage}); err == nil {
				reply.Data = data
			}
		} else {
			reply.Data = resp.Audio
		}

		if err := msg.RespondMsg(reply); err != nil {
			s.logger.Warn("failed to reply to stitch request", slog.String("request_id", resp.RequestID), slogError(err))
		}
	}()
}

package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"imeswitchd/internal/ipc"
	"imeswitchd/internal/session"
)

// handler serves validated IPC envelopes against the daemon. Plugin event
// messages that arrive without a sequence number are fire-and-forget and
// get no reply.
type handler struct {
	d *Daemon
}

func (h *handler) Handle(_ context.Context, env *ipc.Envelope) (*ipc.Envelope, error) {
	switch env.Type {
	case ipc.TypeHello:
		return h.hello(env)

	case ipc.TypeSurfaceOpened:
		var req ipc.SurfaceOpened
		if err := env.DecodePayload(&req); err != nil {
			return ipc.NewErrorEnvelope(env.Seq, ipc.ErrCodeInvalidRequest, err.Error()), nil
		}
		err := h.d.registry.OpenSurface(req.SurfaceID, req.Language, req.App, []byte(req.Text))
		return h.ack(env, err)

	case ipc.TypeSurfaceClosed:
		var req ipc.SurfaceClosed
		if err := env.DecodePayload(&req); err != nil {
			return ipc.NewErrorEnvelope(env.Seq, ipc.ErrCodeInvalidRequest, err.Error()), nil
		}
		h.d.registry.CloseSurface(req.SurfaceID)
		return h.ack(env, nil)

	case ipc.TypeCursorMoved:
		var req ipc.CursorMoved
		if err := env.DecodePayload(&req); err != nil {
			return ipc.NewErrorEnvelope(env.Seq, ipc.ErrCodeInvalidRequest, err.Error()), nil
		}
		err := h.d.registry.CursorMoved(req.SurfaceID, req.Line, req.Column, time.Now())
		return h.ack(env, err)

	case ipc.TypeFocusGained:
		var req ipc.FocusChanged
		if err := env.DecodePayload(&req); err != nil {
			return ipc.NewErrorEnvelope(env.Seq, ipc.ErrCodeInvalidRequest, err.Error()), nil
		}
		err := h.d.registry.FocusGained(req.SurfaceID, time.Now())
		return h.ack(env, err)

	case ipc.TypeFocusLost:
		var req ipc.FocusChanged
		if err := env.DecodePayload(&req); err != nil {
			return ipc.NewErrorEnvelope(env.Seq, ipc.ErrCodeInvalidRequest, err.Error()), nil
		}
		err := h.d.registry.FocusLost(req.SurfaceID, time.Now())
		return h.ack(env, err)

	case ipc.TypeDocumentChanged:
		var req ipc.DocumentChanged
		if err := env.DecodePayload(&req); err != nil {
			return ipc.NewErrorEnvelope(env.Seq, ipc.ErrCodeInvalidRequest, err.Error()), nil
		}
		err := h.d.registry.UpdateDocument(req.SurfaceID, []byte(req.Text))
		return h.ack(env, err)

	case ipc.TypeStatus:
		return ipc.NewEnvelope(ipc.TypeStatusReply, env.Seq, h.d.status())

	case ipc.TypeEnable:
		h.d.registry.SetEnabled(true)
		return &ipc.Envelope{Type: ipc.TypeOK, Seq: env.Seq}, nil

	case ipc.TypeDisable:
		h.d.registry.SetEnabled(false)
		return &ipc.Envelope{Type: ipc.TypeOK, Seq: env.Seq}, nil

	case ipc.TypeHistory:
		var req ipc.HistoryRequest
		if len(env.Payload) > 0 {
			if err := env.DecodePayload(&req); err != nil {
				return ipc.NewErrorEnvelope(env.Seq, ipc.ErrCodeInvalidRequest, err.Error()), nil
			}
		}
		reply, err := h.d.recentHistory(req.Limit)
		if err != nil {
			return ipc.NewErrorEnvelope(env.Seq, ipc.ErrCodeUnavailable, err.Error()), nil
		}
		return ipc.NewEnvelope(ipc.TypeHistoryReply, env.Seq, reply)

	default:
		return ipc.NewErrorEnvelope(env.Seq, ipc.ErrCodeInvalidRequest,
			fmt.Sprintf("unhandled type %q", env.Type)), nil
	}
}

func (h *handler) hello(env *ipc.Envelope) (*ipc.Envelope, error) {
	var req ipc.Hello
	if err := env.DecodePayload(&req); err != nil {
		return ipc.NewErrorEnvelope(env.Seq, ipc.ErrCodeInvalidRequest, err.Error()), nil
	}
	if req.ProtocolVersion > ipc.ProtocolVersion {
		return ipc.NewErrorEnvelope(env.Seq, ipc.ErrCodeInvalidRequest,
			fmt.Sprintf("unsupported protocol version %d", req.ProtocolVersion)), nil
	}
	h.d.log.Info("client connected", "name", req.ClientName, "version", req.ClientVersion)
	return ipc.NewEnvelope(ipc.TypeHelloAck, env.Seq, &ipc.HelloAck{
		ServerVersion:   h.d.version,
		ProtocolVersion: ipc.ProtocolVersion,
	})
}

// ack maps a registry result to a reply envelope. Fire-and-forget events
// (seq zero) are only answered on failure.
func (h *handler) ack(env *ipc.Envelope, err error) (*ipc.Envelope, error) {
	if err != nil {
		code := ipc.ErrCodeInternal
		if errors.Is(err, session.ErrSurfaceNotFound) {
			code = ipc.ErrCodeNotFound
		}
		return ipc.NewErrorEnvelope(env.Seq, code, err.Error()), nil
	}
	if env.Seq == 0 {
		return nil, nil
	}
	return &ipc.Envelope{Type: ipc.TypeOK, Seq: env.Seq}, nil
}

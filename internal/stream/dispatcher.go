package stream

import (
	"encoding/json"
	"time"
)

// dispatch classifies one inbound frame and routes it. Runs on the event
// loop, so every handler below may touch loop-owned state.
func (m *Manager) dispatch(data []byte) {
	f, err := parseInbound(data)
	if err != nil {
		m.stats.errored()
		m.logger.Warn("dropping malformed frame", "error", err)
		return
	}

	m.stats.message(time.Now())
	m.obs.MessageReceived()

	switch f.Type {
	case FrameConnection:
		m.handleConnectionFrame(f)
	case FrameTicks:
		m.handleTicksFrame(f)
	case FrameOrderUpdate:
		if m.OnOrderUpdate != nil && !m.destroyed.Load() {
			m.OnOrderUpdate(f.Data)
		}
	case FrameSubscriptionResponse:
		m.handleSubscriptionResponse(f)
	case FrameError:
		m.handleErrorFrame(f)
	case FramePong:
		// Liveness only; receipt already refreshed LastActivity.
	default:
		m.logger.Warn("dropping unrecognized frame", "type", f.Type)
	}
}

func (m *Manager) handleConnectionFrame(f InboundFrame) {
	var d connectionData
	if len(f.Data) > 0 {
		if err := json.Unmarshal(f.Data, &d); err != nil {
			m.logger.Warn("bad connection frame payload", "error", err)
			return
		}
	}

	msg := d.Message
	if msg == "" {
		msg = f.Message
	}

	switch d.Status {
	case "connected", "ready":
		// The feed recovered from a not-ready phase without dropping the
		// socket; a full reconnect also clears the condition.
		if m.state == StateNotReady {
			m.setState(StateConnected, msg)
			m.drain()
		}
	default:
		m.logger.Info("feed connection status", "status", d.Status, "message", msg)
	}
}

func (m *Manager) handleTicksFrame(f InboundFrame) {
	ticks, err := parseTicks(f.Data)
	if err != nil {
		m.stats.errored()
		m.logger.Warn("dropping bad ticks payload", "error", err)
		return
	}
	for _, t := range ticks {
		m.cache.Put(t)
		m.stats.tick()
		m.obs.TickReceived()
		if m.OnTick != nil && !m.destroyed.Load() {
			m.OnTick(t)
		}
	}
}

func (m *Manager) handleSubscriptionResponse(f InboundFrame) {
	if f.Success != nil && !*f.Success {
		m.logger.Warn("subscription rejected", "code", f.Code, "message", f.Message)
		m.emitError(f.Code, f.Message)
		return
	}
	var d subscriptionData
	if len(f.Data) > 0 {
		if err := json.Unmarshal(f.Data, &d); err != nil {
			m.logger.Warn("bad subscription response payload", "error", err)
			return
		}
		// Server-reported count is authoritative over the local registry size.
		m.stats.setSubscriptions(d.Count)
	}
}

func (m *Manager) handleErrorFrame(f InboundFrame) {
	m.stats.errored()
	m.obs.ErrorReceived(f.Code)

	switch f.Code {
	case CodeRateLimitExceeded:
		cooldown := m.cfg.DefaultCooldown
		if f.RetryAfter > 0 {
			cooldown = time.Duration(f.RetryAfter) * time.Second
		}
		m.gate.limit(time.Now(), cooldown)
		m.armTimer(timerRateLimit, cooldown)
		m.logger.Warn("rate limited by feed", "cooldown", cooldown)
		m.emitError(f.Code, f.Message)

	case CodeServiceNotReady:
		// Socket stays open; outbound traffic continues but data is not
		// flowing yet. Cleared by a later connection status frame.
		m.setState(StateNotReady, f.Message)
		m.emitError(f.Code, f.Message)

	default:
		// Application-level errors (subscription limit and friends) are
		// non-fatal: report and keep streaming.
		m.logger.Warn("feed error", "code", f.Code, "message", f.Message)
		m.emitError(f.Code, f.Message)
	}
}

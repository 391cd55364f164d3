package relay

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

func (r *Relay) handleCommand(client Client, data []byte) {
	cmd, err := DecodeCommand(data)
	if err != nil {
		if errors.Is(err, ErrUnknownCommand) {
			log.Info().Err(err).Str("connection_id", client.ID()).Msg("ignoring unknown command")
		} else {
			log.Warn().Err(err).Str("connection_id", client.ID()).Msg("ignoring malformed command")
		}
		return
	}

	log.Debug().
		Str("connection_id", client.ID()).
		Str("command", string(cmd.Type())).
		Msg("handling command")

	switch c := cmd.(type) {
	case StatusCommand:
		r.sendTo(client, statusEvent(r.store.Snapshot()))
	case RefreshCommand:
		r.refresh(client)
	case SetShutterCommand:
		r.setShutter(c.Opened)
	case ChangeSceneCommand:
		r.changeScene(c)
	case SetCocktailCommand:
		r.setCocktail(client, c.Cocktail)
	case CancelTimerCommand:
		r.cancelTimer()
	case StartTimerCommand:
		r.startTimer(c.EndTime)
	default:
		log.Error().Str("command", string(cmd.Type())).Msg("command has no handler")
	}
}

// refresh re-fetches the scene list and answers the sender with a status.
// When the scene source is unreachable the cached list is kept and the
// status carries the error.
func (r *Relay) refresh(client Client) {
	r.fetchScenes(func(error) {
		r.sendTo(client, statusEvent(r.store.Snapshot()))
	})
}

func (r *Relay) setShutter(opened bool) {
	r.store.Apply(func(s *SessionState) {
		s.ShutterOpen = opened
	})
	r.broadcast(shutterEvent(opened))
}

func (r *Relay) setCocktail(client Client, id CocktailID) {
	if !r.cocktails.Contains(id) {
		log.Warn().
			Str("connection_id", client.ID()).
			Str("cocktail", string(id)).
			Msg("ignoring unknown cocktail")
		return
	}

	r.store.Apply(func(s *SessionState) {
		s.ActiveCocktail = id
	})
	r.broadcast(cocktailEvent(id))
}

func (r *Relay) cancelTimer() {
	r.store.Apply(func(s *SessionState) {
		s.TimerDeadline = nil
	})
	r.broadcast(Event{Event: EventTimerCleared})
}

// startTimer stores the new deadline. Whether the countdown is replaced or
// started fresh depends on the previous deadline only.
func (r *Relay) startTimer(endTime time.Time) {
	now := r.clock.Now()
	eventType := EventCountdownPending

	r.store.Apply(func(s *SessionState) {
		if s.TimerDeadline != nil && s.TimerDeadline.After(now) {
			eventType = EventCountdownReplaced
		}
		deadline := endTime
		s.TimerDeadline = &deadline
	})

	log.Info().
		Time("end_time", endTime).
		Str("event", string(eventType)).
		Msg("timer started")

	r.broadcast(timerEvent(eventType, endTime))
}

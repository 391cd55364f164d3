package relay

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// transition is one in-flight changeScene. At most one exists at a time: a
// new changeScene cancels the pending one, which then emits nothing more.
type transition struct {
	id     uint64
	scene  string
	cancel context.CancelFunc
	// closeTimer delays the switch after the shutter closed, nil without shutter
	closeTimer clockwork.Timer
}

func (r *Relay) changeScene(cmd ChangeSceneCommand) {
	if !r.store.HasScene(cmd.Scene) {
		log.Warn().Str("scene", cmd.Scene).Msg("scene not in cached list, forwarding anyway")
	}

	if r.transition != nil {
		log.Info().
			Str("superseded_scene", r.transition.scene).
			Str("scene", cmd.Scene).
			Msg("superseding pending scene change")
		r.cancelTransition()
	}

	ctx, cancel := context.WithCancel(r.runCtx)
	r.nextTaskID++
	t := &transition{id: r.nextTaskID, scene: cmd.Scene, cancel: cancel}
	if cmd.WithShutter {
		t.closeTimer = r.clock.NewTimer(r.closeDelay)
	}
	r.transition = t

	log.Info().
		Uint64("transition_id", t.id).
		Str("scene", cmd.Scene).
		Bool("with_shutter", cmd.WithShutter).
		Msg("scene change started")

	if cmd.WithShutter {
		r.setShutter(false)
	}

	go r.runTransition(ctx, t)
}

// runTransition waits and switches the scene off the loop; every broadcast is
// posted back to the loop.
func (r *Relay) runTransition(ctx context.Context, t *transition) {
	withShutter := t.closeTimer != nil
	if withShutter && !waitTimer(ctx, t.closeTimer) {
		return
	}

	switchCtx, cancel := context.WithTimeout(ctx, r.sceneTimeout)
	err := r.scenes.SetActiveScene(switchCtx, t.scene)
	cancel()

	if ctx.Err() != nil {
		return
	}

	if err != nil {
		r.post(stepMessage{fn: func() {
			if !r.finishTransition(t) {
				return
			}
			log.Error().Err(err).Str("scene", t.scene).Msg("scene change failed, leaving shutter as is")
			r.broadcast(Event{Event: EventSceneError, Data: SceneErrorPayload{Scene: t.scene, Error: err.Error()}})
		}})
		return
	}

	log.Info().Uint64("transition_id", t.id).Str("scene", t.scene).Msg("scene switched")

	if !withShutter {
		r.post(stepMessage{fn: func() {
			r.finishTransition(t)
		}})
		return
	}

	if !waitTimer(ctx, r.clock.NewTimer(r.openDelay)) {
		return
	}

	r.post(stepMessage{fn: func() {
		if !r.finishTransition(t) {
			return
		}
		r.setShutter(true)
	}})
}

// finishTransition clears t if it is still the current transition. It
// reports false when t was superseded in the meantime.
func (r *Relay) finishTransition(t *transition) bool {
	if r.transition != t {
		return false
	}
	t.cancel()
	r.transition = nil
	return true
}

func (r *Relay) cancelTransition() {
	t := r.transition
	if t == nil {
		return
	}
	t.cancel()
	if t.closeTimer != nil {
		t.closeTimer.Stop()
	}
	r.transition = nil
}

func waitTimer(ctx context.Context, timer clockwork.Timer) bool {
	select {
	case <-timer.Chan():
		return ctx.Err() == nil
	case <-ctx.Done():
		stopAndDrainTimer(timer)
		return false
	}
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

package jobs

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brightpath/safety-engine/internal/audit"
)

// LexiconReloader is satisfied by *safety.Classifier.
type LexiconReloader interface {
	Reload(path string) error
	Version() string
}

// LexiconReloadJob polls the lexicon file and swaps it into the classifier
// whenever its modification time changes. Trigger forces a reload, e.g. on
// SIGHUP.
type LexiconReloadJob struct {
	reloader LexiconReloader
	path     string
	interval time.Duration
	lastMod  time.Time
	trigger  chan struct{}
	done     chan struct{}
}

func NewLexiconReloadJob(reloader LexiconReloader, path string, interval time.Duration) *LexiconReloadJob {
	j := &LexiconReloadJob{
		reloader: reloader,
		path:     path,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	if info, err := os.Stat(path); err == nil {
		j.lastMod = info.ModTime()
	}
	return j
}

func (j *LexiconReloadJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Str("path", j.path).Msg("lexicon reload job started")
}

func (j *LexiconReloadJob) Stop() {
	close(j.done)
	log.Info().Msg("lexicon reload job stopped")
}

func (j *LexiconReloadJob) Trigger() {
	select {
	case j.trigger <- struct{}{}:
	default:
	}
}

func (j *LexiconReloadJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.poll()
		case <-j.trigger:
			j.reload("signal")
		}
	}
}

// poll reloads only when the file changed since the last successful look.
func (j *LexiconReloadJob) poll() bool {
	info, err := os.Stat(j.path)
	if err != nil {
		log.Warn().Err(err).Str("path", j.path).Msg("lexicon file unavailable")
		return false
	}
	if !info.ModTime().After(j.lastMod) {
		return false
	}
	j.lastMod = info.ModTime()
	return j.reload("file_changed")
}

func (j *LexiconReloadJob) reload(trigger string) bool {
	previous := j.reloader.Version()
	if err := j.reloader.Reload(j.path); err != nil {
		log.Error().Err(err).Str("path", j.path).Str("trigger", trigger).Msg("lexicon reload failed, keeping current version")
		audit.Log(context.Background(), audit.Event{
			Type: audit.EventLexiconReload,
			Details: map[string]interface{}{
				"trigger": trigger,
				"success": false,
				"version": previous,
				"error":   err.Error(),
			},
		})
		return false
	}

	audit.Log(context.Background(), audit.Event{
		Type: audit.EventLexiconReload,
		Details: map[string]interface{}{
			"trigger": trigger,
			"success": true,
			"from":    previous,
			"to":      j.reloader.Version(),
		},
	})
	return true
}

package profile

import (
	"context"
	"time"

	"github.com/Mmx233/QRcon/client"
	"github.com/Mmx233/QRcon/config"
	"github.com/Mmx233/QRcon/history"
	"github.com/Mmx233/QRcon/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Runner executes commands on a session and records them.
type Runner struct {
	session *client.Session
	server  config.Server
	store   *history.Store // nil when history is off
	logger  zerolog.Logger
}

// Result is the outcome of one command.
type Result struct {
	Command  string `json:"command"`
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

func NewRunner(session *client.Session, server config.Server, store *history.Store) *Runner {
	return &Runner{
		session: session,
		server:  server,
		store:   store,
		logger:  log.With().Str("com", "runner").Str("session_id", session.ID()).Logger(),
	}
}

// Session returns the underlying session.
func (r *Runner) Session() *client.Session {
	return r.session
}

// History returns the history store, or nil.
func (r *Runner) History() *history.Store {
	return r.store
}

// Run executes command and records the outcome in history.
func (r *Runner) Run(ctx context.Context, command string) (Result, error) {
	results, err := r.RunAll(ctx, []string{command})
	return results[0], err
}

// RunAll executes commands in order, recording each one. It stops at the
// first failure; the failed command is the last result.
func (r *Runner) RunAll(ctx context.Context, commands []string) ([]Result, error) {
	results := make([]Result, 0, len(commands))
	_, err := client.Execute(ctx, r.session, commands,
		func(command string, resp protocol.Packet, err error, took time.Duration) {
			results = append(results, r.record(ctx, command, resp, err, took))
		})
	return results, err
}

func (r *Runner) record(ctx context.Context, command string, resp protocol.Packet, err error, took time.Duration) Result {
	result := Result{Command: command}
	entry := history.Entry{
		SessionID: r.session.ID(),
		Server:    r.server.Address,
		Command:   command,
		Duration:  took,
	}
	if err != nil {
		result.Error = err.Error()
		entry.Error = result.Error
	} else {
		result.Response = string(resp.Payload)
		entry.Response = result.Response
	}

	if r.store != nil {
		// recorded even when ctx is done
		if _, herr := r.store.Record(context.WithoutCancel(ctx), entry); herr != nil {
			r.logger.Warn().Err(herr).Msg("record history failed")
		}
	}
	return result
}

// Close closes the session and the history store.
func (r *Runner) Close() error {
	err := r.session.Close()
	if r.store != nil {
		if herr := r.store.Close(); herr != nil && err == nil {
			err = herr
		}
	}
	return err
}

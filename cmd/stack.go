package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/blacktop/tuneid/internal/engine"
	"github.com/blacktop/tuneid/internal/history"
	"github.com/blacktop/tuneid/internal/identify"
	"github.com/blacktop/tuneid/internal/recognition"
)

// stack wires the recognition pipeline: engine -> session registry ->
// identify manager (+ optional history store).
type stack struct {
	registry *recognition.Registry
	store    *history.Store
	manager  *identify.Manager
}

func buildStack() (*stack, error) {
	eng := engine.NewRemote(engine.RemoteConfig{
		URL:    engineURL,
		APIKey: engineKey,
	})
	reg := recognition.NewRegistry(eng)

	var store *history.Store
	if historyPath != "" {
		if err := os.MkdirAll(filepath.Dir(historyPath), 0755); err != nil {
			reg.Shutdown()
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
		s, err := history.Open(historyPath)
		if err != nil {
			reg.Shutdown()
			return nil, err
		}
		store = s
		log.Debug("History store opened", "path", historyPath)
	}

	mgr, err := identify.New(reg, store, identify.DefaultTimeout)
	if err != nil {
		if store != nil {
			store.Close()
		}
		reg.Shutdown()
		return nil, err
	}

	return &stack{registry: reg, store: store, manager: mgr}, nil
}

func (s *stack) close() {
	s.manager.Close()
	s.registry.Shutdown()
	if s.store != nil {
		s.store.Close()
	}
}

package notify

import (
	"context"
	"fmt"

	"github.com/ayusman/mudra/internal/plugin"
)

// PluginSink hands notifications to a local executable plugin.
type PluginSink struct {
	manager  *plugin.Manager
	executor *plugin.Executor
	name     string
	config   map[string]string
}

// NewPluginSink creates a sink running the plugin called name. config is
// passed to the plugin with every request.
func NewPluginSink(manager *plugin.Manager, executor *plugin.Executor, name string, config map[string]string) *PluginSink {
	return &PluginSink{
		manager:  manager,
		executor: executor,
		name:     name,
		config:   config,
	}
}

// Send runs the plugin with n. An unsuccessful plugin response is an error.
func (s *PluginSink) Send(ctx context.Context, n Notification) error {
	p, err := s.manager.Get(s.name)
	if err != nil {
		return fmt.Errorf("plugin %s: %w", s.name, err)
	}
	if !p.Manifest.Supports(n.Action) {
		return fmt.Errorf("plugin %s does not support action %s", s.name, n.Action)
	}

	resp, err := s.executor.Execute(ctx, p, &plugin.Request{
		Action:   n.Action,
		DeviceID: n.DeviceID,
		State:    n.Value.State,
		Count:    n.Count,
		Config:   s.config,
	})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("plugin %s: %s", s.name, resp.Error)
	}
	return nil
}

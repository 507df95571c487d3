package cli

import (
	"github.com/charmbracelet/log"

	"github.com/AbdelazizMoustafa10m/Kestrel/internal/agent"
	"github.com/AbdelazizMoustafa10m/Kestrel/internal/config"
	"github.com/AbdelazizMoustafa10m/Kestrel/internal/logging"
	"github.com/AbdelazizMoustafa10m/Kestrel/internal/review"
)

// toolConfigs converts the [tools.*] sections into adapter settings.
func toolConfigs(tools map[string]config.ToolConfig) map[string]agent.ToolConfig {
	out := make(map[string]agent.ToolConfig, len(tools))
	for name, tc := range tools {
		out[name] = agent.ToolConfig{
			Command:      tc.Command,
			MaxBudgetUSD: tc.MaxBudgetUSD,
		}
	}
	return out
}

// agentDebugLogger adapts a charmbracelet logger to the adapters'
// Debug(string, ...) interface.
type agentDebugLogger struct {
	logger *log.Logger
}

func (l *agentDebugLogger) Debug(msg string, kv ...interface{}) {
	l.logger.Debug(msg, kv...)
}

// buildRegistry registers every built-in adapter configured from cfg.
func buildRegistry(cfg *config.Config) *agent.Registry {
	return agent.NewDefaultRegistry(toolConfigs(cfg.Tools), &agentDebugLogger{logger: logging.New("agent")})
}

// buildStrategy wires the registry and a shared cooldown table into a
// review strategy. The cooldowns persist for the life of the process so a
// rate-limited tool is skipped by later reviews too.
func buildStrategy(cfg *config.Config, logger *log.Logger) (*review.Strategy, *agent.Registry) {
	registry := buildRegistry(cfg)
	return review.NewStrategy(registry, agent.NewCooldowns(), logger), registry
}

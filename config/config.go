// Package config loads coordination settings from the environment, with
// optional .env file support. All values have working defaults so a zero
// configuration swarm runs out of the box.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/hupe1980/swarmcoord/core"
)

// Config carries the tunables of a coordination node. Field defaults match
// the built-in algorithm defaults.
type Config struct {
	// AgentID identifies this node in broadcast envelopes.
	AgentID string

	// Algorithm is the fallback consensus algorithm name (quorum, weighted,
	// byzantine, gossip).
	Algorithm string

	// QuorumThreshold is the vote ratio that must be strictly exceeded.
	QuorumThreshold float64

	// VoteTimeout bounds vote collection per proposal.
	VoteTimeout time.Duration

	// SyncTimeout bounds response collection per sync session.
	SyncTimeout time.Duration

	// FaultTolerance is the number of byzantine agents tolerated (f).
	FaultTolerance int

	// GossipRounds, GossipFanout and GossipConvergence tune the gossip
	// algorithm's simulation.
	GossipRounds      int
	GossipFanout      int
	GossipConvergence float64

	// Strategy selects the conflict resolution strategy (lww, vector, crdt).
	Strategy core.ResolutionStrategy

	// LogLevel and LogFormat configure the structured logger (debug, info,
	// warn, error; json or text).
	LogLevel  string
	LogFormat string
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		AgentID:           core.CoordinatorAgentID,
		Algorithm:         "quorum",
		QuorumThreshold:   0.5,
		VoteTimeout:       30 * time.Second,
		SyncTimeout:       10 * time.Second,
		FaultTolerance:    1,
		GossipRounds:      10,
		GossipFanout:      3,
		GossipConvergence: 0.95,
		Strategy:          core.StrategyLWW,
		LogLevel:          "info",
		LogFormat:         "json",
	}
}

// FromEnv reads the configuration from SWARM_* environment variables,
// falling back to defaults for unset or malformed values.
func FromEnv() Config {
	def := Default()
	return Config{
		AgentID:           getenv("SWARM_AGENT_ID", def.AgentID),
		Algorithm:         getenv("SWARM_ALGORITHM", def.Algorithm),
		QuorumThreshold:   getenvFloat("SWARM_QUORUM_THRESHOLD", def.QuorumThreshold),
		VoteTimeout:       getenvDuration("SWARM_VOTE_TIMEOUT", def.VoteTimeout),
		SyncTimeout:       getenvDuration("SWARM_SYNC_TIMEOUT", def.SyncTimeout),
		FaultTolerance:    getenvInt("SWARM_FAULT_TOLERANCE", def.FaultTolerance),
		GossipRounds:      getenvInt("SWARM_GOSSIP_ROUNDS", def.GossipRounds),
		GossipFanout:      getenvInt("SWARM_GOSSIP_FANOUT", def.GossipFanout),
		GossipConvergence: getenvFloat("SWARM_GOSSIP_CONVERGENCE", def.GossipConvergence),
		Strategy:          core.ResolutionStrategy(getenv("SWARM_STRATEGY", string(def.Strategy))),
		LogLevel:          getenv("SWARM_LOG_LEVEL", def.LogLevel),
		LogFormat:         getenv("SWARM_LOG_FORMAT", def.LogFormat),
	}
}

// Load reads .env files (missing files are ignored) and then the
// environment. With no arguments it tries ".env" in the working directory.
func Load(files ...string) Config {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
	return FromEnv()
}

// Validate checks value ranges. It is not called by Load so callers can
// decide how strict to be.
func (c Config) Validate() error {
	if c.QuorumThreshold <= 0 || c.QuorumThreshold > 1 {
		return fmt.Errorf("config: quorum threshold %v out of range (0, 1]", c.QuorumThreshold)
	}
	if c.GossipConvergence <= 0 || c.GossipConvergence > 1 {
		return fmt.Errorf("config: gossip convergence %v out of range (0, 1]", c.GossipConvergence)
	}
	if c.FaultTolerance < 1 {
		return fmt.Errorf("config: fault tolerance %d must be at least 1", c.FaultTolerance)
	}
	if c.GossipRounds < 1 || c.GossipFanout < 1 {
		return fmt.Errorf("config: gossip rounds and fanout must be at least 1")
	}
	switch c.Strategy {
	case core.StrategyLWW, core.StrategyVector, core.StrategyCRDT:
	default:
		return fmt.Errorf("config: unknown resolution strategy %q", c.Strategy)
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("agent=%s algorithm=%s threshold=%v strategy=%s vote_timeout=%s sync_timeout=%s",
		c.AgentID, c.Algorithm, c.QuorumThreshold, c.Strategy, c.VoteTimeout, c.SyncTimeout)
}

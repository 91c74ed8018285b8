package actor

const (
	// DefaultGroup is used when a config leaves the group empty.
	DefaultGroup = "default"

	// DefaultMaxTurns bounds the runner loop when unset.
	DefaultMaxTurns = 20

	// DefaultMaxMessages is the history window projected into LLM
	// context when unset.
	DefaultMaxMessages = 50
)

// Config describes an actor to spawn.
type Config struct {
	// Name is the human-readable label peers see in discovery.
	Name string

	// Group tags the actor for peer discovery. Defaults to "default".
	Group string

	// Goals is the free text the actor must pursue.
	Goals string

	// Model optionally overrides the LLM model for this actor.
	Model string

	// Tools lists the external tool names the actor may bind. The
	// literal token "spawn" grants spawn_subagent to non-principals.
	Tools []string

	// MaxTurns bounds the runner loop.
	MaxTurns int

	// MaxMessages is the history window fed to the LLM.
	MaxMessages int
}

func (c *Config) normalize() {
	if c.Group == "" {
		c.Group = DefaultGroup
	}
	if c.MaxTurns <= 0 {
		c.MaxTurns = DefaultMaxTurns
	}
	if c.MaxMessages <= 0 {
		c.MaxMessages = DefaultMaxMessages
	}
}

// permitsSpawn reports whether the tool list carries the spawn grant.
func (c *Config) permitsSpawn() bool {
	for _, name := range c.Tools {
		if name == "spawn" {
			return true
		}
	}

	return false
}

// Info is the public projection of an actor exposed through discovery. It
// never carries inbox, history, or result.
type Info struct {
	ID        string
	Name      string
	Group     string
	Goals     string
	State     State
	SpawnedBy string
}

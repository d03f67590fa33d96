package domain

// Workload is one entry of the static workload table: a named service that
// can be run on the instance, with the shell commands that manage it and the
// network port players connect to. Loaded once at startup, read-only after.
type Workload struct {
	Name                string   `yaml:"-" json:"name"`
	StartCommands       []string `yaml:"start" json:"start"`
	StopCommands        []string `yaml:"stop" json:"stop"`
	PingCommands        []string `yaml:"ping" json:"ping"`
	PlayerCountCommands []string `yaml:"player_count" json:"player_count"`
	Port                int      `yaml:"port" json:"port"`
}

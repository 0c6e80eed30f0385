package app

import (
	"fmt"
	"slices"
)

// Command はrhythmflowバイナリのサブコマンド。
type Command string

const (
	CommandServe   Command = "serve"
	CommandWorker  Command = "worker"
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はdistrolessイメージのHEALTHCHECKから呼ばれる。
	CommandHealthcheck Command = "healthcheck"
)

var commands = []Command{CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck}

// マイグレーションの方向
const (
	MigrateUp   = "up"
	MigrateDown = "down"
)

// ParseCommand は先頭の引数からサブコマンドを決める。引数が無い場合はserve。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}
	cmd := Command(args[0])
	if !slices.Contains(commands, cmd) {
		return "", fmt.Errorf("unknown command %q (want one of %v)", args[0], commands)
	}
	return cmd, nil
}

// MigrateDirection は"migrate [up|down]"の方向を返す。省略時はup。
func MigrateDirection(args []string) (string, error) {
	if len(args) < 2 {
		return MigrateUp, nil
	}
	switch args[1] {
	case MigrateUp, MigrateDown:
		return args[1], nil
	default:
		return "", fmt.Errorf("unknown migrate direction %q", args[1])
	}
}

package types

import (
	"strings"

	"github.com/google/uuid"
)

type RunID string
type LaneKey string

func NewRunID() RunID {
	return RunID(uuid.New().String())
}

func NewLaneKey(parts ...string) LaneKey {
	return LaneKey(strings.Join(parts, ":"))
}

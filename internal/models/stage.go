package models

import (
	"fmt"
	"strings"
)

// Stage is a position in the booking dialogue.
type Stage uint8

const (
	StageWelcome Stage = iota
	StageCollectingName
	StageCollectingPhone
	StageCollectingEmail
	StageCollectingAddress
	StageCollectingServiceType
	StageSelectingDate
	StageSelectingTime
	StageConfirming
	StageCompleted
)

var stageNames = [...]string{
	StageWelcome:               "WELCOME",
	StageCollectingName:        "COLLECTING_NAME",
	StageCollectingPhone:       "COLLECTING_PHONE",
	StageCollectingEmail:       "COLLECTING_EMAIL",
	StageCollectingAddress:     "COLLECTING_ADDRESS",
	StageCollectingServiceType: "COLLECTING_SERVICE_TYPE",
	StageSelectingDate:         "SELECTING_DATE",
	StageSelectingTime:         "SELECTING_TIME",
	StageConfirming:            "CONFIRMING",
	StageCompleted:             "COMPLETED",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", uint8(s))
}

// Valid reports whether s is one of the declared stages.
func (s Stage) Valid() bool {
	return int(s) < len(stageNames)
}

// ParseStage maps a stored stage name back to a Stage.
func ParseStage(name string) (Stage, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}
	return StageWelcome, fmt.Errorf("unknown stage %q", name)
}

func (s Stage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid stage %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(text []byte) error {
	parsed, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

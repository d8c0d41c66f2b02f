package message

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/robofleet/fleetstream/errors"
)

// Classifier maps broker subjects under a fixed prefix onto message kinds.
type Classifier struct {
	prefix string
}

// NewClassifier creates a classifier for subjects under the given prefix
// token (e.g. "robots" for "robots.sensors.tonypi-01").
func NewClassifier(prefix string) *Classifier {
	return &Classifier{prefix: prefix}
}

// Subscriptions returns the subject patterns the engine consumes.
func (c *Classifier) Subscriptions() []string {
	return []string{
		c.prefix + ".sensors.*",
		c.prefix + ".status.*",
		c.prefix + ".location",
		c.prefix + ".battery",
		c.prefix + ".scan.*",
		c.prefix + ".job.*",
		c.prefix + ".servos.*",
		c.prefix + ".vision.*",
		c.prefix + ".logs.*",
		c.prefix + ".commands.response",
	}
}

// ReplySubject returns the per-robot subject scan replies are published on.
func (c *Classifier) ReplySubject(robotID string) string {
	return c.prefix + ".items." + robotID
}

// Classify resolves a subject into a kind plus the robot ID wildcard segment
// when the topic family carries one. Returns ok=false for unmatched subjects.
func (c *Classifier) Classify(subject string) (kind Kind, robotID string, ok bool) {
	rest, found := strings.CutPrefix(subject, c.prefix+".")
	if !found {
		return KindUnknown, "", false
	}

	family, tail, hasTail := strings.Cut(rest, ".")

	switch family {
	case "location":
		if !hasTail {
			return KindLocation, "", true
		}
	case "battery":
		if !hasTail {
			return KindBattery, "", true
		}
	case "commands":
		if tail == "response" {
			return KindCommandResponse, "", true
		}
	case "sensors", "status", "scan", "job", "servos", "vision", "logs":
		// These families require exactly one trailing robot-id token.
		if !hasTail || tail == "" || strings.Contains(tail, ".") {
			return KindUnknown, "", false
		}
		switch family {
		case "sensors":
			return KindSensor, tail, true
		case "status":
			return KindStatus, tail, true
		case "scan":
			return KindScan, tail, true
		case "job":
			return KindJob, tail, true
		case "servos":
			return KindServo, tail, true
		case "vision":
			return KindVision, tail, true
		case "logs":
			return KindLog, tail, true
		}
	}

	return KindUnknown, "", false
}

// Decode parses a raw payload for a classified subject into an Inbound
// message with a typed payload. Malformed JSON is reported as an invalid
// error so the router can drop the message without crashing.
func (c *Classifier) Decode(subject string, payload []byte) (*Inbound, error) {
	kind, robotID, ok := c.Classify(subject)
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrUnknownTopic, subject),
			"Classifier", "Decode", "classify subject")
	}

	var typed any
	var payloadRobotID string

	switch kind {
	case KindSensor:
		var m Sensor
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, decodeErr(err, subject)
		}
		typed, payloadRobotID = &m, m.RobotID
	case KindStatus:
		var m Status
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, decodeErr(err, subject)
		}
		typed, payloadRobotID = &m, m.RobotID
	case KindLocation:
		var m Location
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, decodeErr(err, subject)
		}
		typed, payloadRobotID = &m, m.RobotID
	case KindBattery:
		var m Battery
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, decodeErr(err, subject)
		}
		typed, payloadRobotID = &m, m.RobotID
	case KindScan:
		var m Scan
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, decodeErr(err, subject)
		}
		typed, payloadRobotID = &m, m.RobotID
	case KindJob:
		var m JobProgress
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, decodeErr(err, subject)
		}
		typed, payloadRobotID = &m, m.RobotID
	case KindServo:
		var m Servo
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, decodeErr(err, subject)
		}
		typed, payloadRobotID = &m, m.RobotID
	case KindVision:
		var m Vision
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, decodeErr(err, subject)
		}
		typed, payloadRobotID = &m, m.RobotID
	case KindLog:
		var m RobotLog
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, decodeErr(err, subject)
		}
		typed, payloadRobotID = &m, m.RobotID
	case KindCommandResponse:
		var m CommandResponse
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, decodeErr(err, subject)
		}
		typed, payloadRobotID = &m, m.RobotID
	}

	// The wildcard segment wins; location/battery subjects carry the robot
	// ID only in the payload.
	if robotID == "" {
		robotID = payloadRobotID
	}

	return &Inbound{
		Kind:     kind,
		RobotID:  robotID,
		Subject:  subject,
		Payload:  typed,
		Received: time.Now().UTC(),
	}, nil
}

func decodeErr(err error, subject string) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
		"Classifier", "Decode", "unmarshal payload for "+subject)
}

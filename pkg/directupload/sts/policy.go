package sts

import (
	"encoding/json"
	"fmt"
)

const (
	policyVersion   = "2012-10-17"
	actionPutObject = "s3:PutObject"
)

type statement struct {
	Effect   string   `json:"Effect"`
	Action   []string `json:"Action"`
	Resource []string `json:"Resource"`
}

type sessionPolicy struct {
	Version   string      `json:"Version"`
	Statement []statement `json:"Statement"`
}

// SessionPolicy returns the inline policy attached to the role assumption.
// It allows exactly one action, s3:PutObject, on the given resource.
func SessionPolicy(resourceARN string) (string, error) {
	data, err := json.Marshal(sessionPolicy{
		Version: policyVersion,
		Statement: []statement{{
			Effect:   "Allow",
			Action:   []string{actionPutObject},
			Resource: []string{resourceARN},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode session policy: %w", err)
	}
	return string(data), nil
}

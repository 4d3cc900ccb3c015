// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package nats

import (
	"bytes"
	"encoding/json"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
)

// Config holds the connection settings for the NATS command transport.
type Config struct {
	// Address of the NATS server, e.g. "nats://localhost:4222".
	Address string `json:"address"`
	// Username/Password authenticate when both are set.
	Username string `json:"username"`
	Password string `json:"password"`
	// CredsFilePath points at a NATS credentials file.
	CredsFilePath string `json:"creds-file-path"`
	// Subjects to subscribe for command ingestion.
	Subjects []string `json:"subjects"`
}

// Keys holds the global NATS configuration loaded via Init.
var Keys Config

// ConfigSchema validates the nats section of the program config.
const ConfigSchema = `{
    "type": "object",
    "description": "Configuration for the NATS command transport.",
    "properties": {
        "address": {
            "description": "Address of the NATS server (e.g., 'nats://localhost:4222').",
            "type": "string"
        },
        "username": {
            "description": "Username for NATS authentication (optional).",
            "type": "string"
        },
        "password": {
            "description": "Password for NATS authentication (optional).",
            "type": "string"
        },
        "creds-file-path": {
            "description": "Path to NATS credentials file for authentication (optional).",
            "type": "string"
        },
        "subjects": {
            "description": "Subjects to subscribe for command ingestion.",
            "type": "array",
            "items": { "type": "string" }
        }
    },
    "required": ["address"]
}`

// Init loads the global Keys configuration from JSON.
func Init(rawConfig json.RawMessage) error {
	if rawConfig == nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(rawConfig))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		cclog.Errorf("Error while initializing nats client config: %s", err.Error())
		return err
	}
	return nil
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

const configSchema = `{
  "type": "object",
  "description": "murk program configuration.",
  "properties": {
    "addr": {
      "description": "Address the HTTP server listens on (e.g., ':8080').",
      "type": "string"
    },
    "db": {
      "description": "Path to the sqlite run database.",
      "type": "string"
    },
    "archive-dir": {
      "description": "Directory for replay recordings.",
      "type": "string"
    },
    "submit-rate-per-sec": {
      "description": "Command API rate limit; 0 disables limiting.",
      "type": "number",
      "minimum": 0
    },
    "nats": {
      "description": "NATS command transport settings (validated by the nats package).",
      "type": "object"
    },
    "tasks": {
      "description": "Background service settings (validated by the taskmanager package).",
      "type": "object"
    },
    "world": {
      "type": "object",
      "description": "World definition.",
      "properties": {
        "space": {
          "type": "object",
          "properties": {
            "kind": { "type": "string", "enum": ["line1d", "grid2d"] },
            "length": { "type": "integer", "minimum": 1 },
            "width": { "type": "integer", "minimum": 1 },
            "height": { "type": "integer", "minimum": 1 },
            "edge": { "type": "string", "enum": ["absorb", "clamp", "wrap"] }
          },
          "required": ["kind"]
        },
        "fields": {
          "type": "array",
          "minItems": 1,
          "items": {
            "type": "object",
            "properties": {
              "name": { "type": "string" },
              "type": { "type": "string", "enum": ["scalar", "vector", "categorical"] },
              "dims": { "type": "integer", "minimum": 1, "maximum": 16 },
              "values": { "type": "integer", "minimum": 2 },
              "mutability": { "type": "string", "enum": ["per-tick", "static", "sparse"] }
            },
            "required": ["name", "type"]
          }
        },
        "propagators": {
          "type": "array",
          "minItems": 1,
          "items": {
            "type": "object",
            "properties": {
              "kind": { "type": "string", "enum": ["diffusion", "const"] },
              "name": { "type": "string" },
              "field": { "type": "string" },
              "alpha": { "type": "number" },
              "value": { "type": "number" }
            },
            "required": ["kind", "field"]
          }
        },
        "dt": { "type": "number", "exclusiveMinimum": 0 },
        "seed": { "type": "integer", "minimum": 0 },
        "tick-rate-hz": { "type": "number", "exclusiveMinimum": 0 },
        "max-ingress-queue": { "type": "integer", "minimum": 1 },
        "ring-buffer-size": { "type": "integer", "minimum": 1 },
        "egress-workers": { "type": "integer", "minimum": 1 }
      },
      "required": ["space", "fields", "propagators", "dt"]
    }
  },
  "required": ["world"]
}`

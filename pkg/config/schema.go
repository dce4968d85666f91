// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

// productionSchema is the JSON schema every configuration file must
// satisfy before the structural checks in Validate run.
const productionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["production", "items"],
  "properties": {
    "production": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "startup_delay": {"type": "number", "minimum": 0},
        "monitoring_interval": {"type": "number", "minimum": 0},
        "drain_timeout": {"type": "number", "minimum": 0},
        "shutdown_timeout": {"type": "number", "minimum": 0},
        "start_disabled_items": {"type": "boolean"}
      }
    },
    "wal": {
      "type": "object",
      "properties": {
        "dir": {"type": "string"},
        "durability": {"enum": ["", "fsync", "async", "none"]},
        "max_file_size": {"type": "integer", "minimum": 0},
        "max_retries": {"type": "integer", "minimum": 0},
        "entry_ttl": {"type": "number", "minimum": 0},
        "sync_interval": {"type": "number", "minimum": 0}
      }
    },
    "store": {
      "type": "object",
      "properties": {
        "driver": {"enum": ["", "memory", "sqlite", "postgres"]},
        "dsn": {"type": "string"}
      }
    },
    "admin": {
      "type": "object",
      "properties": {
        "port": {"type": "integer", "minimum": 0, "maximum": 65535},
        "host": {"type": "string"}
      }
    },
    "log": {
      "type": "object",
      "properties": {
        "level": {"enum": ["", "debug", "info", "warn", "error"]},
        "format": {"enum": ["", "text", "json"]}
      }
    },
    "items": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "class_name"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "class_name": {"type": "string", "minLength": 1},
          "pool_size": {"type": "integer", "minimum": 0},
          "enabled": {"type": "boolean"},
          "adapter_settings": {"type": "object"},
          "host_settings": {"type": "object"}
        }
      }
    },
    "connections": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["from", "to"],
        "properties": {
          "from": {"type": "string", "minLength": 1},
          "to": {"type": "string", "minLength": 1},
          "kind": {"enum": ["", "standard", "error", "async"]}
        }
      }
    },
    "rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "action"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "priority": {"type": "integer"},
          "condition": {"type": "string"},
          "action": {"enum": ["send", "transform", "delete"]},
          "targets": {"type": "array", "items": {"type": "string"}},
          "transform": {"type": "string"},
          "disabled": {"type": "boolean"}
        }
      }
    }
  }
}`

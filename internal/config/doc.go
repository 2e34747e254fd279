// Package config loads casta.json, the configuration file of the casta
// server.
//
// Every field is optional. Durations are strings parsed with
// time.ParseDuration. Errors are coded internal/errors values that point
// at the offending line of the file.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "address": ":8080",
//	    "allowedOrigins": ["https://display.example.com"],
//	    "shutdownTimeout": "10s",
//	    "maxSessions": 0
//	  },
//	  "session": {
//	    "heartbeatInterval": "5s",
//	    "clientTimeout": "10s"
//	  },
//	  "transport": {
//	    "writeTimeout": "10s",
//	    "maxMessageSize": 65536
//	  },
//	  "log": {
//	    "level": "info",
//	    "format": "json"
//	  },
//	  "metrics": {
//	    "enabled": true,
//	    "path": "/metrics"
//	  }
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    errors.Fprint(os.Stderr, err)
//	    os.Exit(1)
//	}
//
//	sessions := session.NewManager(cfg.SessionConfig(), state, logger)
package config

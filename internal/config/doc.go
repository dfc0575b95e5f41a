// Package config provides configuration parsing for optimist deployments.
//
// The configuration is stored in optimist.json at the project root.
// This package handles loading, saving, and validating configuration.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "addr": ":8080",
//	    "metricsEnabled": true,
//	    "tracingEnabled": false
//	  },
//	  "sync": {
//	    "maxSessions": 1024,
//	    "sendBuffer": 64,
//	    "pingIntervalSeconds": 30
//	  },
//	  "cache": {
//	    "ttlSeconds": 3600,
//	    "janitorSeconds": 60
//	  },
//	  "persist": {
//	    "backend": "s3",
//	    "bucket": "idea-snapshots",
//	    "intervalSeconds": 60
//	  },
//	  "log": {
//	    "level": "info",
//	    "format": "text"
//	  }
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Addr:", cfg.Server.Addr)
package config

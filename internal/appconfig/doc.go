// Package appconfig loads the authd process configuration.
//
// Values are layered: built-in defaults, then the YAML file, then a .env
// file, then AUTHD_* environment variables. A .env file never overrides a
// variable that is already set in the environment.
//
//	server:
//	  addr: ":8080"
//	database:
//	  driver: postgres
//	  dsn: postgres://authd@localhost/authd?sslmode=disable
//	redis:
//	  addr: localhost:6379
//	auth:
//	  access_ttl: 15m
//	  refresh_ttl: 168h
//	logging:
//	  level: info
//	  format: json
//
// The signing secret should come from AUTHD_JWT_SECRET rather than the file.
package appconfig

package main

//go:generate swag init -g cmd/aggregator/docs.go -o docs

// @title           Paynode Aggregator API
// @version         0.1.0
// @description     Order admission, provider intents, proposal lifecycle and settlement controls.
// @host            localhost:8080
// @BasePath        /
// @schemes         http

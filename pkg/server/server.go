// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package server exposes the recommender over HTTP. It is a stateless
// translation layer: handlers validate identifiers, call into the dataset
// repository, the classifier registry and the training scheduler, and map
// domain errors to status codes. The HTTP client lives next to the server
// in this package.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/DataDog/galahad/pkg/classifier"
	"github.com/DataDog/galahad/pkg/dataset"
	"github.com/DataDog/galahad/pkg/training"
)

// Server is the HTTP surface of the recommender.
type Server struct {
	repository *dataset.Repository
	registry   *classifier.Registry
	scheduler  *training.Scheduler
	log        *zap.Logger
	listener   net.Listener
	server     *http.Server
}

// New returns a server listening on addr.
func New(addr string, repository *dataset.Repository, registry *classifier.Registry, scheduler *training.Scheduler, log *zap.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("could not listen on [%s]: %w", addr, err)
	}
	return &Server{
		repository: repository,
		registry:   registry,
		scheduler:  scheduler,
		log:        log,
		listener:   listener,
		server:     &http.Server{},
	}, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start starts serving requests.
func (s *Server) Start(_ context.Context) error {
	s.server.Handler = s.handler()
	go func() {
		err := s.server.Serve(s.listener)
		if err != nil && err != http.ErrServerClosed {
			s.log.Info("server stopped", zap.Error(err))
		}
	}()
	s.log.Info("serving", zap.String("addr", s.Addr()))
	return nil
}

// Stop stops accepting requests and waits for in-flight ones to finish.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

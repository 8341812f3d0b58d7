// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package sharding

import "errors"

var (
	// ErrEngineNotStarted indicates that the sharding engine has not been started before use.
	ErrEngineNotStarted = errors.New("sharding engine is not started")

	// ErrTypeNameRequired is returned when an entity type name is required but not provided.
	ErrTypeNameRequired = errors.New("entity type name is required")

	// ErrEntityFactoryRequired is returned when hosting a type without an entity factory.
	ErrEntityFactoryRequired = errors.New("entity factory is required")

	// ErrExtractorRequired is returned when a type is started without a message extractor.
	ErrExtractorRequired = errors.New("message extractor is required")

	// ErrProxyStarted is returned when hosting a type this engine already proxies, or vice versa.
	ErrProxyStarted = errors.New("entity type is already started with a different mode")

	// ErrNoRegionAvailable is returned by an allocation strategy when no region can host a shard.
	ErrNoRegionAvailable = errors.New("no region available to allocate the shard")

	// ErrInvalidConfig indicates an invalid sharding configuration value.
	ErrInvalidConfig = errors.New("invalid sharding config")

	// ErrHandleStopped is returned when delivering through a stopped handle.
	ErrHandleStopped = errors.New("sharding handle is stopped")
)

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

package membership

import (
	"fmt"
	"net"
	"strconv"
	"time"

	sockaddr "github.com/hashicorp/go-sockaddr"
	"github.com/hashicorp/memberlist"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"

	"github.com/tochemey/goshard/log"
)

// nodeMeta is gossiped alongside each node. Birth orders members by join
// time across the cluster; clock skew between nodes only matters when two
// members join within the skew window, and the address tie-break keeps the
// order total even then.
type nodeMeta struct {
	Roles []string `msgpack:"roles"`
	Birth int64    `msgpack:"birth"`
}

// MemberlistConfig configures a gossip-backed membership feed.
type MemberlistConfig struct {
	// BindAddr is the address to bind gossip to. When empty a private
	// interface address is detected.
	BindAddr string
	// BindPort is the gossip port.
	BindPort int
	// JoinAddresses seed the cluster; empty bootstraps a new one.
	JoinAddresses []string
	// Roles are the role tags advertised by this member.
	Roles []string
	// Logger receives feed diagnostics. Defaults to log.DiscardLogger.
	Logger log.Logger
}

// MemberlistFeed implements Feed on top of hashicorp/memberlist: the gossip
// layer does the failure detection and this type translates its node events
// into the ordered up/removed feed that shard regions consume.
type MemberlistFeed struct {
	fanout     *fanout
	config     MemberlistConfig
	meta       nodeMeta
	memberlist *memberlist.Memberlist
	nodeEvents chan memberlist.NodeEvent
	stopLoop   chan struct{}
	eg         errgroup.Group
	logger     log.Logger
}

// enforce compilation error
var _ Feed = (*MemberlistFeed)(nil)

type metaDelegate struct {
	encoded []byte
}

func (d *metaDelegate) NodeMeta(limit int) []byte {
	if len(d.encoded) > limit {
		return nil
	}
	return d.encoded
}

func (d *metaDelegate) NotifyMsg([]byte)                {}
func (d *metaDelegate) GetBroadcasts(int, int) [][]byte { return nil }
func (d *metaDelegate) LocalState(bool) []byte          { return nil }
func (d *metaDelegate) MergeRemoteState([]byte, bool)   {}

// NewMemberlistFeed starts gossiping and joins the configured seed nodes.
func NewMemberlistFeed(config MemberlistConfig) (*MemberlistFeed, error) {
	logger := config.Logger
	if logger == nil {
		logger = log.DiscardLogger
	}

	bindAddr := config.BindAddr
	if bindAddr == "" {
		detected, err := sockaddr.GetPrivateIP()
		if err != nil {
			return nil, fmt.Errorf("membership: detecting bind address: %w", err)
		}
		bindAddr = detected
	}

	meta := nodeMeta{Roles: config.Roles, Birth: time.Now().UnixNano()}
	encodedMeta, err := msgpack.Marshal(&meta)
	if err != nil {
		return nil, fmt.Errorf("membership: encoding node meta: %w", err)
	}

	feed := &MemberlistFeed{
		fanout:     newFanout(),
		config:     config,
		meta:       meta,
		nodeEvents: make(chan memberlist.NodeEvent, subscriptionBuffer),
		stopLoop:   make(chan struct{}),
		logger:     logger,
	}

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = net.JoinHostPort(bindAddr, strconv.Itoa(config.BindPort))
	mlConfig.BindAddr = bindAddr
	mlConfig.BindPort = config.BindPort
	mlConfig.AdvertisePort = config.BindPort
	mlConfig.Delegate = &metaDelegate{encoded: encodedMeta}
	mlConfig.Events = &memberlist.ChannelEventDelegate{Ch: feed.nodeEvents}
	mlConfig.LogOutput = logger.StdLogger().Writer()

	list, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("membership: creating memberlist: %w", err)
	}
	feed.memberlist = list

	if len(config.JoinAddresses) > 0 {
		if _, err := list.Join(config.JoinAddresses); err != nil {
			_ = list.Shutdown()
			return nil, fmt.Errorf("membership: joining cluster: %w", err)
		}
	}

	feed.eg.Go(feed.eventsLoop)
	return feed, nil
}

// Address returns the member address this feed advertises.
func (f *MemberlistFeed) Address() string {
	return f.memberlist.LocalNode().Name
}

// Subscribe opens a subscription delivering the current member snapshot and
// all subsequent changes in order.
func (f *MemberlistFeed) Subscribe() (*Subscription, error) {
	return f.fanout.subscribe()
}

// Stop leaves the gossip cluster and cancels every subscription.
func (f *MemberlistFeed) Stop() error {
	close(f.stopLoop)
	leaveErr := f.memberlist.Leave(5 * time.Second)
	shutdownErr := f.memberlist.Shutdown()
	_ = f.eg.Wait()
	if err := f.fanout.stop(); err != nil {
		return err
	}
	if leaveErr != nil {
		return leaveErr
	}
	return shutdownErr
}

func (f *MemberlistFeed) eventsLoop() error {
	for {
		select {
		case <-f.stopLoop:
			return nil
		case nodeEvent := <-f.nodeEvents:
			f.handleNodeEvent(nodeEvent)
		}
	}
}

func (f *MemberlistFeed) handleNodeEvent(nodeEvent memberlist.NodeEvent) {
	switch nodeEvent.Event {
	case memberlist.NodeJoin:
		member, err := memberFromNode(nodeEvent.Node)
		if err != nil {
			f.logger.Warnf("membership: dropping join for %s: %v", nodeEvent.Node.Name, err)
			return
		}
		f.fanout.memberUp(member)
	case memberlist.NodeLeave:
		f.fanout.memberRemoved(nodeEvent.Node.Name)
	case memberlist.NodeUpdate:
		// role and age never change for a member incarnation
	}
}

func memberFromNode(node *memberlist.Node) (Member, error) {
	var meta nodeMeta
	if len(node.Meta) > 0 {
		if err := msgpack.Unmarshal(node.Meta, &meta); err != nil {
			return Member{}, fmt.Errorf("decoding node meta: %w", err)
		}
	}
	return Member{
		Address: node.Name,
		Roles:   meta.Roles,
		Age:     uint64(meta.Birth),
	}, nil
}

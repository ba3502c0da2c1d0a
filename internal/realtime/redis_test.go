package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/suite"
)

type RedisBrokerSuite struct {
	suite.Suite
	mini   *miniredis.Miniredis
	client *redis.Client
	broker *RedisBroker
	ctx    context.Context
}

func TestRedisBrokerSuite(t *testing.T) {
	suite.Run(t, new(RedisBrokerSuite))
}

func (s *RedisBrokerSuite) SetupTest() {
	s.mini = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: s.mini.Addr()})
	log, _ := logtest.NewNullLogger()
	s.broker = NewRedisBroker(s.client, 16, log)
	s.ctx = context.Background()
}

func (s *RedisBrokerSuite) TearDownTest() {
	_ = s.client.Close()
	s.mini.Close()
}

func (s *RedisBrokerSuite) TestPublishUsesCasinoTableChannel() {
	ps := s.client.Subscribe(s.ctx, "floor:c1:ratingslip")
	defer ps.Close()
	_, err := ps.Receive(s.ctx)
	s.Require().NoError(err)

	e := mustEvent(s.T(), "c1", TableRatingSlip, OpInsert, map[string]string{"id": "s1"})
	s.Require().NoError(s.broker.Publish(s.ctx, e))

	msg, err := ps.ReceiveMessage(s.ctx)
	s.Require().NoError(err)
	s.Equal("floor:c1:ratingslip", msg.Channel)
	s.Contains(msg.Payload, `"op":"INSERT"`)
}

func (s *RedisBrokerSuite) TestSubscribeTables() {
	sub, err := s.broker.Subscribe(s.ctx, Filter{CasinoID: "c1", Tables: []string{TableRatingSlip, TableGamingTable}})
	s.Require().NoError(err)
	defer sub.Close()

	s.Require().NoError(s.broker.Publish(s.ctx, mustEvent(s.T(), "c2", TableRatingSlip, OpInsert, map[string]string{"id": "x"})))
	s.Require().NoError(s.broker.Publish(s.ctx, mustEvent(s.T(), "c1", TableGamingTable, OpUpdate, map[string]string{"id": "t1"})))

	e := recv(s.T(), sub)
	s.Equal(TableGamingTable, e.Table)
	s.Equal(OpUpdate, e.Op)
	s.False(sub.Missed())
}

func (s *RedisBrokerSuite) TestPatternSubscribeWholeCasino() {
	sub, err := s.broker.Subscribe(s.ctx, Filter{CasinoID: "c1"})
	s.Require().NoError(err)
	defer sub.Close()

	s.Require().NoError(s.broker.Publish(s.ctx, mustEvent(s.T(), "c1", TableVisit, OpInsert, map[string]string{"id": "v1"})))
	e := recv(s.T(), sub)
	s.Equal(TableVisit, e.Table)
}

func (s *RedisBrokerSuite) TestUndecodablePayloadFlagsMissed() {
	sub, err := s.broker.Subscribe(s.ctx, Filter{CasinoID: "c1", Tables: []string{TableRatingSlip}})
	s.Require().NoError(err)
	defer sub.Close()

	s.Require().NoError(s.client.Publish(s.ctx, "floor:c1:ratingslip", "not json").Err())
	s.Require().NoError(s.broker.Publish(s.ctx, mustEvent(s.T(), "c1", TableRatingSlip, OpInsert, map[string]string{"id": "s1"})))

	recv(s.T(), sub)
	s.True(sub.Missed())
}

func (s *RedisBrokerSuite) TestRestartSignalsGap() {
	sub, err := s.broker.Subscribe(s.ctx, Filter{CasinoID: "c1", Tables: []string{TableRatingSlip}})
	s.Require().NoError(err)
	defer sub.Close()

	s.mini.Close()
	s.Require().NoError(s.mini.Restart())
	select {
	case <-sub.Gaps():
	case <-time.After(3 * time.Second):
		s.FailNow("no gap after restart")
	}

	// delivery resumes once the broker has resubscribed
	e := mustEvent(s.T(), "c1", TableRatingSlip, OpInsert, map[string]string{"id": "s2"})
	s.Eventually(func() bool {
		_ = s.broker.Publish(s.ctx, e)
		select {
		case got := <-sub.Events():
			return got.Op == OpInsert
		default:
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)
}

func (s *RedisBrokerSuite) TestCancelClosesSubscription() {
	ctx, cancel := context.WithCancel(s.ctx)
	sub, err := s.broker.Subscribe(ctx, Filter{CasinoID: "c1"})
	s.Require().NoError(err)
	cancel()
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		s.Fail("subscription not closed")
	}
}

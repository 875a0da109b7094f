package server

import (
	"sort"

	"github.com/crazyfrankie/grpcbus/protocol"
)

// callStore owns the calls of one client service id and its reference on the
// backend connection.
type callStore struct {
	s         *Server
	serviceID int32
	conn      *serviceConn
	calls     map[int32]*call
}

func newCallStore(s *Server, serviceID int32, conn *serviceConn) *callStore {
	return &callStore{
		s:         s,
		serviceID: serviceID,
		conn:      conn,
		calls:     make(map[int32]*call),
	}
}

// initCall starts a call and registers it once the backend accepted it.
func (cs *callStore) initCall(msg *protocol.CreateCall) error {
	c := &call{s: cs.s, store: cs, id: msg.CallID}
	if err := c.init(msg.Info); err != nil {
		return err
	}
	cs.calls[c.id] = c
	return nil
}

func (cs *callStore) remove(id int32) {
	delete(cs.calls, id)
}

// dispose ends every call in id order, then releases the connection.
func (cs *callStore) dispose() {
	ids := make([]int32, 0, len(cs.calls))
	for id := range cs.calls {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if c, ok := cs.calls[id]; ok {
			c.dispose()
		}
	}
	cs.calls = make(map[int32]*call)
	cs.conn.release(cs.serviceID, cs.s.opt.statsHandler)
}

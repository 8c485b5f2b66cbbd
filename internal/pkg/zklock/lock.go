package zklock

import (
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

const lockRoot = "/distributed_locks"

// Connect dials the ZooKeeper ensemble with a short session timeout.
func Connect(servers []string) (*zk.Conn, error) {
	conn, _, err := zk.Connect(servers, 10*time.Second)
	if err != nil {
		return nil, errors.Wrap(err, "connect to zookeeper")
	}
	return conn, nil
}

// DistributedLock is an ephemeral-sequential ZooKeeper lock. Workers racing
// on a shared resource queue up under one path and proceed in node order.
type DistributedLock struct {
	conn     *zk.Conn
	path     string
	lockNode string
}

// New ensures the lock path exists and returns a lock handle for resourceID.
func New(conn *zk.Conn, resourceID string) (*DistributedLock, error) {
	for _, path := range []string{lockRoot, lockRoot + "/" + resourceID} {
		exists, _, err := conn.Exists(path)
		if err != nil {
			return nil, errors.Wrapf(err, "check lock node %s", path)
		}
		if !exists {
			if _, err := conn.Create(path, []byte{}, 0, zk.WorldACL(zk.PermAll)); err != nil && err != zk.ErrNodeExists {
				return nil, errors.Wrapf(err, "create lock node %s", path)
			}
		}
	}
	return &DistributedLock{conn: conn, path: lockRoot + "/" + resourceID}, nil
}

// Lock blocks until this worker owns the smallest sequence node under the
// lock path, watching its predecessor in the meantime.
func (l *DistributedLock) Lock() error {
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte{}, zk.WorldACL(zk.PermAll))
	if err != nil {
		return errors.Wrap(err, "create sequential node")
	}
	l.lockNode = nodePath

	for {
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			return errors.Wrap(err, "list lock children")
		}
		sort.Strings(children)

		myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")
		if myNodeName == children[0] {
			return nil
		}

		prevNodeIndex := -1
		for i, child := range children {
			if child == myNodeName {
				prevNodeIndex = i - 1
				break
			}
		}
		if prevNodeIndex < 0 {
			return errors.New("own lock node missing from children")
		}
		prevNodePath := l.path + "/" + children[prevNodeIndex]

		_, _, eventChan, err := l.conn.ExistsW(prevNodePath)
		if err != nil {
			// Predecessor may vanish between the list and the watch.
			if err == zk.ErrNoNode {
				continue
			}
			return errors.Wrap(err, "watch previous node")
		}

		select {
		case event := <-eventChan:
			if event.Type == zk.EventNodeDeleted {
				continue
			}
		case <-time.After(30 * time.Second):
			return errors.New("timeout waiting for lock")
		}
	}
}

// Unlock deletes this worker's sequence node, waking the next waiter.
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	if err := l.conn.Delete(l.lockNode, -1); err != nil && err != zk.ErrNoNode {
		return errors.Wrap(err, "delete lock node")
	}
	l.lockNode = ""
	return nil
}

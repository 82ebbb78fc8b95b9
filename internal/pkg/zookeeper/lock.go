// internal/pkg/zookeeper/lock.go
package zookeeper

import (
	"fmt"
	"time"

	"github.com/go-zookeeper/zk"
)

const lockRoot = "/marketplace_locks" // 所有分布式锁的根节点

// Conn 封装 ZooKeeper 连接
type Conn struct {
	*zk.Conn
}

// Connect 建立 ZooKeeper 会话
func Connect(servers []string) (*Conn, error) {
	conn, _, err := zk.Connect(servers, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper: %w", err)
	}
	return &Conn{Conn: conn}, nil
}

// Elector 抽象"本轮是否由我执行"的判定。
// 后台清扫类任务（库存过期清扫、卡单清理）在多副本部署时，
// 每轮先尝试成为 leader，失败则跳过本轮，避免重复执行。
type Elector interface {
	// TryAcquire 非阻塞地尝试获取领导权。
	// 成功时返回 release 函数，调用方在本轮结束后释放。
	TryAcquire() (acquired bool, release func(), err error)
}

// AlwaysLeader 用于测试和单副本部署：每轮都认为自己是 leader
type AlwaysLeader struct{}

func (AlwaysLeader) TryAcquire() (bool, func(), error) {
	return true, func() {}, nil
}

// ZkElector 基于 ZooKeeper 临时节点实现的非阻塞锁。
// 与顺序节点排队的互斥锁不同，这里抢不到就直接放弃，
// 因为清扫任务只需要"同一时刻最多一个副本在跑"。
type ZkElector struct {
	conn     *Conn
	resource string
}

func NewZkElector(conn *Conn, resource string) *ZkElector {
	return &ZkElector{conn: conn, resource: resource}
}

func (e *ZkElector) TryAcquire() (bool, func(), error) {
	if err := e.ensurePath(lockRoot); err != nil {
		return false, nil, err
	}

	node := lockRoot + "/" + e.resource
	_, err := e.conn.Create(node, []byte(""), zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	if err == zk.ErrNodeExists {
		// 别的副本持有领导权
		return false, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("failed to create leader node %s: %w", node, err)
	}

	release := func() {
		// 删除失败时临时节点会随会话结束被清除，不影响正确性
		_ = e.conn.Delete(node, -1)
	}
	return true, release, nil
}

func (e *ZkElector) ensurePath(path string) error {
	exists, _, err := e.conn.Exists(path)
	if err != nil {
		return fmt.Errorf("failed to check zookeeper path %s: %w", path, err)
	}
	if exists {
		return nil
	}
	if _, err := e.conn.Create(path, []byte(""), 0, zk.WorldACL(zk.PermAll)); err != nil && err != zk.ErrNodeExists {
		return fmt.Errorf("failed to create zookeeper path %s: %w", path, err)
	}
	return nil
}

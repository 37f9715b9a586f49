package docstore

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// startWatcher polls PRAGMA data_version on a dedicated connection. The value
// changes whenever another connection (including other processes) commits,
// which is how listeners learn about writes they did not make themselves.
func (s *SQLite) startWatcher(ctx context.Context, interval time.Duration) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	var last int64
	if err := conn.QueryRowContext(ctx, `PRAGMA data_version`).Scan(&last); err != nil {
		_ = conn.Close()
		return err
	}

	s.watchWG.Add(1)
	go func() {
		defer s.watchWG.Done()
		defer conn.Close()

		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-t.C:
			}
			var v int64
			if err := conn.QueryRowContext(context.Background(), `PRAGMA data_version`).Scan(&v); err != nil {
				s.log.Debug("data_version poll failed", zap.Error(err))
				continue
			}
			if v != last {
				last = v
				s.notifyAll()
			}
		}
	}()
	return nil
}

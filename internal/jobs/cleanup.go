package jobs

import "time"

const (
	recordSweepInterval = 1 * time.Second
	orphanSweepInterval = 10 * time.Minute
)

// onTerminal は終端状態への遷移ごとに一度だけ呼ばれます。
// 一時ファイルを即座に削除し、レコードには削除期限を設定します。
// 期限はポーリングが終端状態を観測できるだけの猶予を与えます。
func (m *Manager) onTerminal(t task) {
	m.svc.RemoveArtifact(t.artifact.Path)

	grace := time.Duration(m.cfg.JobGraceSeconds) * time.Second
	if err := m.store.ExpireAfter(t.id, grace); err != nil && m.logger != nil {
		m.logger.Printf("failed to schedule cleanup for job %s: %v", t.id, err)
	}
}

// sweeper は期限切れレコードの削除と孤児一時ファイルの回収を定期的に行います。
// 完了ジョブごとにタイマーを立てる代わりに、単一のループで全件を処理します。
func (m *Manager) sweeper() {
	defer m.wg.Done()

	recordTicker := time.NewTicker(recordSweepInterval)
	defer recordTicker.Stop()
	orphanTicker := time.NewTicker(orphanSweepInterval)
	defer orphanTicker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-recordTicker.C:
			m.store.SweepExpired()
		case <-orphanTicker.C:
			maxAge := time.Duration(m.cfg.OrphanMaxAgeMinutes) * time.Minute
			m.svc.SweepOrphans(maxAge, m.store.Contains)
		}
	}
}

// LumiMD - Medication Management and Care Coordination
// Copyright 2026 Tyler McAnally (tylerdmcanally)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tylerdmcanally/LumiMD-sub011

package docstore

import "github.com/tylerdmcanally/LumiMD-sub011/internal/metrics"

// recordBatchCommit instruments one committed batch chunk.
func recordBatchCommit(ops int) {
	metrics.StoreBatchCommitsTotal.Inc()
	metrics.StoreBatchOpsPerCommit.Observe(float64(ops))
}

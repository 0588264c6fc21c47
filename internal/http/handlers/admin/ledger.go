package admin

import (
	"strings"

	"github.com/dujiao-next/affiliate-engine/internal/http/response"

	"github.com/gin-gonic/gin"
)

// ReconcileLedger 全量校准推广员账本；队列可用时投递任务，否则同步执行
func (h *Handler) ReconcileLedger(c *gin.Context) {
	async := !strings.EqualFold(strings.TrimSpace(c.Query("async")), "false")
	if async && h.QueueClient.Enabled() {
		if err := h.QueueClient.EnqueueLedgerReconcile(); err != nil {
			respondError(c, response.CodeInternal, "投递账本校准任务失败", err)
			return
		}
		response.Success(c, gin.H{"queued": true})
		return
	}

	count, err := h.AffiliateLedger.RecountAll(c.Request.Context())
	if err != nil {
		respondServiceError(c, err, "账本校准失败")
		return
	}
	requestLog(c).Infow("admin_ledger_reconciled", "affiliates", count, "operator", adminSubject(c))
	response.Success(c, gin.H{"queued": false, "affiliates": count})
}

package adminapi

import (
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/waplex/waplex/internal/webserver"
	"github.com/waplex/waplex/pkg/metrics"
)

var startedAt = time.Now()

func registerStatusRoutes() {
	webserver.ApiGET("/status", getStatus)
	webserver.ApiGET("/status/metrics/:name", getMetricSeries)
	webserver.PubGET("/realtime", getRealtime)
}

// getStatus reports session state counts, host resource usage and the
// running message counters.
func getStatus(c echo.Context) error {
	states := map[string]int{}
	for state, count := range manager.StateCounts() {
		states[string(state)] = count
	}

	var cpuPercent float64
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		cpuPercent = percents[0]
	}
	var memPercent float64
	if vm, err := mem.VirtualMemory(); err == nil {
		memPercent = vm.UsedPercent
	}

	return ok(c, map[string]interface{}{
		"uptime_secs":      int64(time.Since(startedAt).Seconds()),
		"sessions":         states,
		"realtime_clients": hub.ClientCount(),
		"messages_sent":    metrics.CounterValue("chat_messages_sent"),
		"messages_recv":    metrics.CounterValue("chat_messages_received"),
		"cpu_percent":      cpuPercent,
		"mem_percent":      memPercent,
		"goroutines":       runtime.NumGoroutine(),
	})
}

// getMetricSeries returns stored datapoints for one metric over the
// requested window (default last hour).
func getMetricSeries(c echo.Context) error {
	name := c.Param("name")
	end := time.Now().Unix()
	start := end - 3600
	if v := c.QueryParam("start"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			start = t.Unix()
		}
	}
	if v := c.QueryParam("end"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			end = t.Unix()
		}
	}
	points, err := metrics.Select(name, start, end)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "METRICS_ERROR", "Failed to query metric", err.Error())
	}
	return ok(c, points)
}

// getRealtime upgrades the connection to a websocket that streams session
// events.
func getRealtime(c echo.Context) error {
	return hub.Upgrade(c.Response(), c.Request())
}

package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	IMOnlineUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "im_online_users",
			Help: "Number of websocket sessions connected to this instance",
		},
	)

	IMMessageCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "im_messages_total",
			Help: "Websocket frames by type and direction",
		},
		[]string{"type", "direction"},
	)

	IMDeliveriesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "im_deliveries_dropped_total",
			Help: "Live notifications that were dropped",
		},
		[]string{"reason"},
	)

	MessageReads = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "message_reads_total",
			Help: "Messages moved from unread to read",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(IMOnlineUsers)
	prometheus.MustRegister(IMMessageCounter)
	prometheus.MustRegister(IMDeliveriesDropped)
	prometheus.MustRegister(MessageReads)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	collector := NewCollector()

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.Registry())
	assert.NotNil(t, collector.uptimeSeconds)
	assert.NotNil(t, collector.runningContainers)
	assert.NotNil(t, collector.activeDeployments)
	assert.NotNil(t, collector.buildsTotal)
	assert.NotNil(t, collector.deploymentsTotal)
	assert.NotNil(t, collector.buildDuration)
	assert.NotNil(t, collector.deployDuration)
}

func TestCollector_SetRunningContainers(t *testing.T) {
	collector := NewCollector()

	value := testutil.ToFloat64(collector.runningContainers)
	assert.Equal(t, float64(0), value)

	collector.SetRunningContainers(5)
	value = testutil.ToFloat64(collector.runningContainers)
	assert.Equal(t, float64(5), value)

	collector.SetRunningContainers(0)
	value = testutil.ToFloat64(collector.runningContainers)
	assert.Equal(t, float64(0), value)
}

func TestCollector_SetActiveDeployments(t *testing.T) {
	collector := NewCollector()

	collector.SetActiveDeployments(2)
	value := testutil.ToFloat64(collector.activeDeployments)
	assert.Equal(t, float64(2), value)

	collector.SetActiveDeployments(0)
	value = testutil.ToFloat64(collector.activeDeployments)
	assert.Equal(t, float64(0), value)
}

func TestCollector_RecordBuild(t *testing.T) {
	collector := NewCollector()

	collector.RecordBuild(true, 30*time.Second)

	successCount := testutil.ToFloat64(collector.buildsTotal.WithLabelValues("success"))
	failedCount := testutil.ToFloat64(collector.buildsTotal.WithLabelValues("failed"))

	assert.Equal(t, float64(1), successCount)
	assert.Equal(t, float64(0), failedCount)

	collector.RecordBuild(false, 10*time.Second)

	successCount = testutil.ToFloat64(collector.buildsTotal.WithLabelValues("success"))
	failedCount = testutil.ToFloat64(collector.buildsTotal.WithLabelValues("failed"))

	assert.Equal(t, float64(1), successCount)
	assert.Equal(t, float64(1), failedCount)
}

func TestCollector_RecordDeployment(t *testing.T) {
	collector := NewCollector()

	collector.RecordDeployment(true, 5*time.Second)

	successCount := testutil.ToFloat64(collector.deploymentsTotal.WithLabelValues("success"))
	failedCount := testutil.ToFloat64(collector.deploymentsTotal.WithLabelValues("failed"))

	assert.Equal(t, float64(1), successCount)
	assert.Equal(t, float64(0), failedCount)

	collector.RecordDeployment(false, 2*time.Second)

	successCount = testutil.ToFloat64(collector.deploymentsTotal.WithLabelValues("success"))
	failedCount = testutil.ToFloat64(collector.deploymentsTotal.WithLabelValues("failed"))

	assert.Equal(t, float64(1), successCount)
	assert.Equal(t, float64(1), failedCount)
}

func TestCollector_RecordRestart(t *testing.T) {
	collector := NewCollector()

	collector.RecordRestart("42")
	collector.RecordRestart("42")
	collector.RecordRestart("7")

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.restartsTotal.WithLabelValues("42")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.restartsTotal.WithLabelValues("7")))
}

func TestCollector_UptimeTracking(t *testing.T) {
	collector := NewCollector()

	time.Sleep(100 * time.Millisecond)

	uptime := time.Since(collector.startTime).Seconds()
	collector.uptimeSeconds.Set(uptime)

	retrievedUptime := testutil.ToFloat64(collector.uptimeSeconds)

	assert.Greater(t, retrievedUptime, float64(0))
	assert.Less(t, retrievedUptime, float64(1))
}

func TestCollector_MetricsOutput(t *testing.T) {
	collector := NewCollector()

	collector.SetRunningContainers(3)
	collector.SetActiveDeployments(1)
	collector.RecordBuild(true, 30*time.Second)
	collector.RecordBuild(false, 45*time.Second)
	collector.RecordDeployment(true, 10*time.Second)

	gathered, err := collector.Registry().Gather()
	require.NoError(t, err)
	require.NotEmpty(t, gathered)

	metricNames := make(map[string]bool)
	for _, mf := range gathered {
		metricNames[mf.GetName()] = true
	}

	expectedMetrics := []string{
		"ployer_uptime_seconds",
		"ployer_running_containers",
		"ployer_active_deployments",
		"ployer_builds_total",
		"ployer_deployments_total",
		"ployer_restarts_total",
		"ployer_build_duration_seconds",
		"ployer_deploy_duration_seconds",
	}

	for _, expected := range expectedMetrics {
		assert.True(t, metricNames[expected], "Expected metric %s not found", expected)
	}
}

func TestGlobalCollectorFunctions(t *testing.T) {
	SetRunningContainers(5)
	SetActiveDeployments(1)
	RecordBuild(true, time.Second)
	RecordDeployment(false, time.Millisecond)

	InitGlobal()
	assert.NotNil(t, DefaultCollector)

	SetRunningContainers(10)
	value := testutil.ToFloat64(DefaultCollector.runningContainers)
	assert.Equal(t, float64(10), value)

	RecordBuild(true, 25*time.Second)
	successCount := testutil.ToFloat64(DefaultCollector.buildsTotal.WithLabelValues("success"))
	assert.Equal(t, float64(1), successCount)

	RecordDeployment(false, 3*time.Second)
	failedCount := testutil.ToFloat64(DefaultCollector.deploymentsTotal.WithLabelValues("failed"))
	assert.Equal(t, float64(1), failedCount)
}

func TestCollector_RegistryIsolation(t *testing.T) {
	collector1 := NewCollector()
	collector2 := NewCollector()

	assert.NotSame(t, collector1.Registry(), collector2.Registry())

	collector1.SetRunningContainers(5)
	collector2.SetRunningContainers(10)

	value1 := testutil.ToFloat64(collector1.runningContainers)
	value2 := testutil.ToFloat64(collector2.runningContainers)

	assert.Equal(t, float64(5), value1)
	assert.Equal(t, float64(10), value2)
}

func TestCollector_PrometheusFormat(t *testing.T) {
	collector := NewCollector()

	collector.SetRunningContainers(2)
	collector.RecordBuild(true, 30*time.Second)

	expected := `
		# HELP ployer_running_containers Number of application containers currently running
		# TYPE ployer_running_containers gauge
		ployer_running_containers 2
	`

	err := testutil.CollectAndCompare(collector.runningContainers, strings.NewReader(expected))
	assert.NoError(t, err)
}

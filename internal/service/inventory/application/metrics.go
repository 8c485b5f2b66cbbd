package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_tasks_total",
		Help: "Tasks by terminal outcome.",
	}, []string{"outcome"})

	tokensMoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_tokens_total",
		Help: "Tokens moved through the counter by operation.",
	}, []string{"op"})
)

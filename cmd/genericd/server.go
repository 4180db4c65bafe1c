package main

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/silverswords/rclgeneric/pkg/qos"
	"github.com/silverswords/rclgeneric/pkg/typesupport"
	"github.com/silverswords/rclgeneric/pkg/version"
)

func (d *daemon) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"version": version.Version(), "commit": version.Commit()})
	})
	r.GET("/subscriptions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"node":          d.node.FullyQualifiedName(),
			"received":      d.received(),
			"subscriptions": d.node.Subscriptions(),
		})
	})
	// POST /publish/<topic>?type=pkg/msg/Type&qos=sensor_data publishes the
	// raw request body.
	r.POST("/publish/*topic", d.handlePublish)
	return r
}

func (d *daemon) handlePublish(c *gin.Context) {
	topic := strings.TrimPrefix(c.Param("topic"), "/")
	typeName := c.Query("type")
	if topic == "" || typeName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "topic and type are required"})
		return
	}
	if !strings.HasPrefix(topic, "~") {
		topic = "/" + topic
	}
	profile, err := qos.Preset(c.Query("qos"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := d.publisher(topic, typeName, profile)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, typesupport.ErrTypeResolution) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	seq, err := p.PublishBytes(c.Request.Context(), body).Get(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"topic": p.TopicName(), "type": p.TopicType(), "seq": seq})
}

func (d *daemon) serve(addr string) error {
	srv := &http.Server{Addr: addr, Handler: d.router()}
	d.mu.Lock()
	d.server = srv
	d.mu.Unlock()

	log.Infof("introspection listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

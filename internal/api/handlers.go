// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Fuelink

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fuelink/forecourt/internal/fleet"
)

type pumpAPI struct {
	fleet *fleet.Manager
	log   *logrus.Entry
}

type addPumpRequest struct {
	Port    string `json:"port" binding:"required"`
	Address int    `json:"address" binding:"required"`
	Name    string `json:"name"`
}

type discoverRequest struct {
	Ports          []string `json:"ports"`
	AddressLo      int      `json:"address_lo"`
	AddressHi      int      `json:"address_hi"`
	TimeoutSeconds float64  `json:"timeout_seconds"`
	AutoAdd        bool     `json:"auto_add"`
}

func (h *pumpAPI) health(c *gin.Context) {
	devices := h.fleet.List()
	connected := 0
	for _, d := range devices {
		if d.Connected {
			connected++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"pumps":           len(devices),
		"connected_pumps": connected,
		"timestamp":       time.Now().UTC(),
	})
}

func (h *pumpAPI) listPumps(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pumps": h.fleet.List()})
}

func (h *pumpAPI) addPump(c *gin.Context) {
	var req addPumpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dev, err := h.fleet.Add(req.Port, req.Address, req.Name)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, dev)
}

func (h *pumpAPI) getPump(c *gin.Context) {
	id, ok := h.pumpID(c)
	if !ok {
		return
	}
	dev, err := h.fleet.Get(id)
	if err != nil {
		h.notFound(c, err)
		return
	}
	c.JSON(http.StatusOK, dev)
}

func (h *pumpAPI) removePump(c *gin.Context) {
	id, ok := h.pumpID(c)
	if !ok {
		return
	}
	if err := h.fleet.Remove(id); err != nil {
		h.notFound(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": id})
}

func (h *pumpAPI) pumpStatus(c *gin.Context) {
	id, ok := h.pumpID(c)
	if !ok {
		return
	}
	res, err := h.fleet.Status(id)
	if err != nil {
		h.notFound(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *pumpAPI) pumpTransaction(c *gin.Context) {
	id, ok := h.pumpID(c)
	if !ok {
		return
	}
	rec, err := h.fleet.Transaction(id)
	if err != nil {
		if errors.Is(err, fleet.ErrNotFound) {
			h.notFound(c, err)
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *pumpAPI) pumpTotals(c *gin.Context) {
	id, ok := h.pumpID(c)
	if !ok {
		return
	}
	rec, err := h.fleet.Totals(id)
	if err != nil {
		if errors.Is(err, fleet.ErrNotFound) {
			h.notFound(c, err)
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *pumpAPI) connectPump(c *gin.Context) {
	id, ok := h.pumpID(c)
	if !ok {
		return
	}
	dev, err := h.fleet.Connect(id)
	if err != nil {
		if errors.Is(err, fleet.ErrNotFound) {
			h.notFound(c, err)
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dev)
}

func (h *pumpAPI) disconnectPump(c *gin.Context) {
	id, ok := h.pumpID(c)
	if !ok {
		return
	}
	if err := h.fleet.Disconnect(id); err != nil {
		if errors.Is(err, fleet.ErrNotFound) {
			h.notFound(c, err)
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"disconnected": id})
}

func (h *pumpAPI) authorizePump(c *gin.Context) {
	id, ok := h.pumpID(c)
	if !ok {
		return
	}
	confirmed, err := h.fleet.Authorize(id)
	if err != nil {
		h.notFound(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pump_id": id, "authorized": confirmed})
}

func (h *pumpAPI) stopPump(c *gin.Context) {
	id, ok := h.pumpID(c)
	if !ok {
		return
	}
	confirmed, err := h.fleet.Stop(id)
	if err != nil {
		h.notFound(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pump_id": id, "stopped": confirmed})
}

func (h *pumpAPI) allStatuses(c *gin.Context) {
	results := h.fleet.Statuses()
	c.JSON(http.StatusOK, gin.H{
		"statuses":  results,
		"count":     len(results),
		"timestamp": time.Now().UTC(),
	})
}

func (h *pumpAPI) connectAll(c *gin.Context) {
	connected := h.fleet.ConnectAll()
	c.JSON(http.StatusOK, gin.H{
		"connected": connected,
		"total":     len(h.fleet.List()),
	})
}

func (h *pumpAPI) disconnectAll(c *gin.Context) {
	h.fleet.DisconnectAll()
	c.JSON(http.StatusOK, gin.H{"disconnected": len(h.fleet.List())})
}

func (h *pumpAPI) allStop(c *gin.Context) {
	stopped := h.fleet.StopAll()
	h.log.WithField("stopped", stopped).Warn("emergency stop requested over API")
	c.JSON(http.StatusOK, gin.H{"stopped": stopped})
}

func (h *pumpAPI) discover(c *gin.Context) {
	var req discoverRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	res, err := h.fleet.Discover(req.Ports, fleet.DiscoveryConfig{
		AddressLo:    req.AddressLo,
		AddressHi:    req.AddressHi,
		ProbeTimeout: time.Duration(req.TimeoutSeconds * float64(time.Second)),
		AutoAdd:      req.AutoAdd,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *pumpAPI) pumpID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pump id must be an integer"})
		return 0, false
	}
	return id, true
}

func (h *pumpAPI) notFound(c *gin.Context, err error) {
	if errors.Is(err, fleet.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

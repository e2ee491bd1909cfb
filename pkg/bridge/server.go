package bridge

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"

	"epibridge/pkg/apis"
	"epibridge/pkg/apis/response"
	"epibridge/pkg/runtime"
	v1 "epibridge/pkg/v1"
)

var patchTypes = sets.NewString(string(types.MergePatchType))

func InstallHandler(group *gin.RouterGroup, mgr *Manager) {
	group.GET("/connections", listConnections(mgr))
	group.GET("/connections/:id", getConnectionById(mgr))
	group.POST("/connections/test", testEndpoint(mgr))
	group.POST("/connections/:id/test", testConnectionById(mgr))

	group.GET("/signals", listSignals(mgr))
	group.GET("/signals/:name", getSignalByName(mgr))

	group.GET("/actions", listActions(mgr))
	group.POST("/actions/:name/execute", executeActionByName(mgr))

	group.POST("/commands", runCommand(mgr))
	group.POST("/commands/write", writeSignal(mgr))
	group.POST("/commands/action", executeAction(mgr))

	group.POST("/catalogue/refresh", refreshCatalogue(mgr))
	group.GET("/events", listEvents(mgr))

	group.GET("/bridge/meta", getBridgeMeta(mgr))
	group.GET("/bridge/status", getBridgeStatus(mgr))
	group.GET("/bridge/settings", getSettings(mgr))
	group.PUT("/bridge/settings", updateSettings(mgr))
	group.PATCH("/bridge/settings", patchSettings(mgr))
}

func listConnections(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		query := c.Request.URL.Query()
		filter := runtime.ConnectionFilter{}
		if len(query) > 0 {
			v := query.Get(apis.Filter)
			if len(v) > 0 {
				if err := json.Unmarshal([]byte(v), &filter); err != nil {
					c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
					return
				}
			}
		}
		c.JSON(http.StatusOK, gin.H{"connections": mgr.ListConnections(&filter)})
	}
}

func getConnectionById(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		connection, err := mgr.GetConnection(c.Param("id"))
		if err != nil {
			writeLookupError(c, err)
			return
		}
		c.Header(apis.ETag, connection.GetVersion())
		c.JSON(http.StatusOK, connection)
	}
}

func testEndpoint(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body v1.ConnectionTestRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			klog.V(2).InfoS("Failed to parse test request", "err", err)
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}
		if err := mgr.TestConnection(c.Request.Context(), body.Host, body.Port, body.Unit); err != nil {
			c.JSON(http.StatusOK, gin.H{"reachable": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"reachable": true})
	}
}

func testConnectionById(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		connection, err := mgr.GetConnection(c.Param("id"))
		if err != nil {
			writeLookupError(c, err)
			return
		}
		if err := mgr.TestConnection(c.Request.Context(), connection.Host, connection.Port, connection.Unit); err != nil {
			c.JSON(http.StatusOK, gin.H{"reachable": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"reachable": true})
	}
}

func listSignals(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()
		c.JSON(http.StatusOK, gin.H{"signals": mgr.ListSignals()})
	}
}

func getSignalByName(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		signal, err := mgr.GetSignal(c.Param("name"))
		if err != nil {
			writeLookupError(c, err)
			return
		}
		c.JSON(http.StatusOK, signal)
	}
}

func listActions(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()
		c.JSON(http.StatusOK, gin.H{"actions": mgr.ListActions()})
	}
}

// runCommand accepts the combined command form: exactly one of signalName
// and actionName.
func runCommand(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body v1.Command
		if err := c.ShouldBindJSON(&body); err != nil {
			klog.V(2).InfoS("Failed to parse command", "err", err)
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}
		hasSignal := len(body.SignalName) > 0
		hasAction := len(body.ActionName) > 0
		if hasSignal == hasAction {
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrCommandAmbiguous))
			return
		}

		if hasSignal {
			value, err := mgr.WriteSignal(c.Request.Context(), body.SignalName, body.Value)
			if err != nil {
				writeCommandError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"signalName": body.SignalName, "value": value})
			return
		}

		result, err := mgr.ExecuteAction(c.Request.Context(), body.ActionName, body.Parameters)
		if err != nil {
			writeCommandError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"actionName": body.ActionName, "result": result})
	}
}

func writeSignal(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body v1.WriteCommand
		if err := c.ShouldBindJSON(&body); err != nil {
			klog.V(2).InfoS("Failed to parse write command", "err", err)
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}
		value, err := mgr.WriteSignal(c.Request.Context(), body.SignalName, body.Value)
		if err != nil {
			writeCommandError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"signalName": body.SignalName, "value": value})
	}
}

func executeAction(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body v1.ActionCommand
		if err := c.ShouldBindJSON(&body); err != nil {
			klog.V(2).InfoS("Failed to parse action command", "err", err)
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}
		result, err := mgr.ExecuteAction(c.Request.Context(), body.ActionName, body.Parameters)
		if err != nil {
			writeCommandError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"actionName": body.ActionName, "result": result})
	}
}

func executeActionByName(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		params := map[string]interface{}{}
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&params); err != nil {
				klog.V(2).InfoS("Failed to parse action parameters", "action", name, "err", err)
				c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
				return
			}
		}
		result, err := mgr.ExecuteAction(c.Request.Context(), name, params)
		if err != nil {
			writeCommandError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"actionName": name, "result": result})
	}
}

func refreshCatalogue(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		diff, err := mgr.RefreshCatalogue(c.Request.Context())
		if err != nil {
			if errors.Is(err, response.ErrCatalogueUnavailable) {
				c.JSON(http.StatusServiceUnavailable, response.NewMultiError(response.ErrCatalogueUnavailable))
			} else {
				c.Status(http.StatusInternalServerError)
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"added":   diff.Added,
			"removed": diff.Removed,
			"kept":    diff.Kept,
		})
	}
}

func listEvents(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		limit := 0
		if v := c.Query(apis.Limit); len(v) > 0 {
			limit, _ = strconv.Atoi(v)
		}
		c.JSON(http.StatusOK, gin.H{"events": mgr.RecentEvents(limit)})
	}
}

func getBridgeMeta(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		meta := mgr.GetBridgeMeta()
		c.Header(apis.ETag, meta.GetVersion())
		c.JSON(http.StatusOK, meta)
	}
}

func getBridgeStatus(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		cpus, err := mgr.getBridgeCpu()
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		memory, err := mgr.getBridgeMem()
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		disks, err := mgr.getBridgeDisk()
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, ResponseModel{Cpus: cpus, Mem: memory, Disks: disks})
	}
}

func getSettings(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		settings := mgr.GetSettings()
		c.Header(apis.ETag, settings.GetVersion())
		c.JSON(http.StatusOK, settings)
	}
}

func updateSettings(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		eTag := c.GetHeader(apis.IfMatch)
		if len(eTag) == 0 {
			c.Status(http.StatusPreconditionRequired)
			return
		}

		var body v1.SettingsBody
		if err := c.ShouldBindJSON(&body); err != nil {
			klog.V(2).InfoS("Failed to parse settings", "err", err)
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}

		updated, err := mgr.UpdateSettings(&body, eTag)
		if err != nil {
			writeSettingsError(c, err)
			return
		}
		c.Header(apis.ETag, updated.GetVersion())
		c.JSON(http.StatusOK, updated)
	}
}

func patchSettings(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		contentType := c.GetHeader("Content-Type")
		// Remove "; charset=" if included in header.
		if idx := strings.Index(contentType, ";"); idx > 0 {
			contentType = contentType[:idx]
		}
		if !patchTypes.Has(contentType) {
			c.Status(http.StatusUnsupportedMediaType)
			return
		}

		eTag := c.GetHeader(apis.IfMatch)
		if len(eTag) == 0 {
			c.Status(http.StatusPreconditionRequired)
			return
		}

		patch, err := io.ReadAll(c.Request.Body)
		if err != nil {
			klog.V(3).InfoS("Failed to read", "err", err)
			c.Status(http.StatusInternalServerError)
			return
		}

		updated, err := mgr.PatchSettings(patch, eTag)
		if err != nil {
			writeSettingsError(c, err)
			return
		}
		c.Header(apis.ETag, updated.GetVersion())
		c.JSON(http.StatusOK, updated)
	}
}

func writeSettingsError(c *gin.Context, err error) {
	switch {
	case os.IsNotExist(err):
		c.Status(http.StatusNotFound)
	case errors.Is(err, apis.ErrMismatch):
		c.Status(http.StatusPreconditionFailed)
	case errors.Is(err, apis.ErrInvalidValue):
		c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrRequestBody))
	default:
		c.Status(http.StatusInternalServerError)
	}
}

func writeLookupError(c *gin.Context, err error) {
	if errors.Is(err, response.ErrCatalogueUnavailable) {
		c.JSON(http.StatusServiceUnavailable, response.NewMultiError(response.ErrCatalogueUnavailable))
		return
	}
	c.JSON(http.StatusNotFound, response.NewMultiError(err))
}

func writeCommandError(c *gin.Context, err error) {
	if errors.Is(err, response.ErrCatalogueUnavailable) {
		c.JSON(http.StatusServiceUnavailable, response.NewMultiError(response.ErrCatalogueUnavailable))
		return
	}
	if response.IsResponseError(err) {
		c.JSON(http.StatusBadRequest, response.NewMultiError(err))
		return
	}
	c.Status(http.StatusInternalServerError)
}

package bus

// This file centralizes the Data shapes for each recognised EventType.
// Keeping one constructor per type here means every publisher builds
// the same map[string]any shape for a given EventType, and every
// subscriber can rely on it.

// NewClientConnectionData builds the Data map for NewClientConnection.
func NewClientConnectionData(clientIP, clientID string, timestampMS int64) map[string]any {
	return map[string]any{
		"client_ip":  clientIP,
		"client_id":  clientID,
		"timestamp":  timestampMS,
	}
}

// RequestForClassificationData builds the Data map for RequestForClassification.
func RequestForClassificationData(clientIP, clientID, requestData string, timestampMS int64) map[string]any {
	return map[string]any{
		"client_ip":    clientIP,
		"client_id":    clientID,
		"request_data": requestData,
		"timestamp":    timestampMS,
	}
}

// RequestClassifiedData builds the Data map for RequestClassified.
func RequestClassifiedData(clientIP, classification, clientID string) map[string]any {
	return map[string]any{
		"client_ip":      clientIP,
		"classification": classification,
		"client_id":      clientID,
	}
}

// RequestRoutedData builds the Data map for RequestRouted.
func RequestRoutedData(clientIP, serverID string, isMalicious bool, strategyName string, currentConnections int64, routingTimeNS int64, totalRequests uint64) map[string]any {
	return map[string]any{
		"client_ip":           clientIP,
		"server_id":           serverID,
		"is_malicious":        isMalicious,
		"strategy":            strategyName,
		"current_connections": currentConnections,
		"routing_time_ns":     routingTimeNS,
		"total_requests":      totalRequests,
	}
}

// RequestProcessedData builds the Data map for RequestProcessed.
func RequestProcessedData(serverID string, responseTimeMS int64, success bool) map[string]any {
	return map[string]any{
		"server_id":        serverID,
		"response_time_ms": responseTimeMS,
		"success":          success,
	}
}

// ServiceRegisteredData builds the Data map for ServiceRegistered.
func ServiceRegisteredData(serverID, host string, port int, isHoneypot bool, weight float64) map[string]any {
	return map[string]any{
		"server_id":   serverID,
		"host":        host,
		"port":        port,
		"is_honeypot": isHoneypot,
		"weight":      weight,
	}
}

// ServiceHealthUpdateData builds the Data map for ServiceHealthUpdate.
func ServiceHealthUpdateData(serverID, host string, port int, isHoneypot, healthy bool, currentConnections int64) map[string]any {
	return map[string]any{
		"server_id":           serverID,
		"host":                host,
		"port":                port,
		"is_honeypot":         isHoneypot,
		"healthy":             healthy,
		"current_connections": currentConnections,
	}
}

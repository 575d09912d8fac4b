package xapi

import (
	"net"
	"strconv"
)

type Server struct {
	Name          string `mapstructure:"name"`
	Address       string `mapstructure:"address"`
	MainPort      int    `mapstructure:"main_port"`
	StreamingPort int    `mapstructure:"streaming_port"`
	WebsocketURL  string `mapstructure:"websocket_url"`
	StreamURL     string `mapstructure:"stream_url"`
}

func (s Server) MainAddress() string {
	return net.JoinHostPort(s.Address, strconv.Itoa(s.MainPort))
}

func (s Server) StreamAddress() string {
	return net.JoinHostPort(s.Address, strconv.Itoa(s.StreamingPort))
}

const (
	demoMainPort      = 5124
	demoStreamingPort = 5125
	realMainPort      = 5112
	realStreamingPort = 5113
)

var backupHosts = []string{"xapi.xtb.com", "xapia.x-station.eu", "xapib.x-station.eu"}

// DemoServers lists the demo endpoints, primary first.
func DemoServers() []Server {
	return servers("demo", demoMainPort, demoStreamingPort)
}

// RealServers lists the live endpoints, primary first.
func RealServers() []Server {
	return servers("real", realMainPort, realStreamingPort)
}

func servers(mode string, mainPort, streamingPort int) []Server {
	list := make([]Server, 0, len(backupHosts))
	for i, host := range backupHosts {
		list = append(list, Server{
			Name:          mode + "-" + strconv.Itoa(i),
			Address:       host,
			MainPort:      mainPort,
			StreamingPort: streamingPort,
			WebsocketURL:  "wss://ws.xtb.com/" + mode,
			StreamURL:     "wss://ws.xtb.com/" + mode + "Stream",
		})
	}
	return list
}

// redirected returns the server a redirect response points to.
func redirected(from Server, r *RedirectError) Server {
	return Server{
		Name:          from.Name + "-redirect",
		Address:       r.Address,
		MainPort:      r.MainPort,
		StreamingPort: r.StreamingPort,
		WebsocketURL:  from.WebsocketURL,
		StreamURL:     from.StreamURL,
	}
}

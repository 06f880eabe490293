package helm

import (
	apimeta "k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

// restConfigGetter adapts an already-resolved *rest.Config (the same
// one the reconciler's Kubernetes client was built from) into the
// genericclioptions.RESTClientGetter action.Configuration.Init wants.
// The teacher's version of this file passed nil here with a TODO; a nil
// getter makes every Helm operation fall back to the in-process
// environment's kubeconfig, which silently targets the wrong cluster
// once more than one region exists.
type restConfigGetter struct {
	cfg *rest.Config
}

func newRESTClientGetter(cfg *rest.Config) genericclioptions.RESTClientGetter {
	return &restConfigGetter{cfg: cfg}
}

func (g *restConfigGetter) ToRESTConfig() (*rest.Config, error) {
	return g.cfg, nil
}

func (g *restConfigGetter) ToDiscoveryClient() (discovery.CachedDiscoveryInterface, error) {
	dc, err := discovery.NewDiscoveryClientForConfig(g.cfg)
	if err != nil {
		return nil, err
	}
	return memory.NewMemCacheClient(dc), nil
}

func (g *restConfigGetter) ToRESTMapper() (apimeta.RESTMapper, error) {
	dc, err := g.ToDiscoveryClient()
	if err != nil {
		return nil, err
	}
	return restmapper.NewDeferredDiscoveryRESTMapper(dc), nil
}

func (g *restConfigGetter) ToRawKubeConfigLoader() clientcmd.ClientConfig {
	return clientcmd.NewDefaultClientConfig(clientcmdapi.Config{}, &clientcmd.ConfigOverrides{})
}

package render

import (
	"github.com/lynxrender/backend/internal/templatedata"
)

// UpdateData merges data into the page.
func (s *Session) UpdateData(data *templatedata.TemplateData) {
	if data == nil {
		s.logger.Err().Str(`op`, `update_data`).Log(`nil data ignored`)
		return
	}
	h, ok := s.ready(`update_data`)
	if !ok {
		return
	}
	s.emitter.SetInPreload(false)
	s.markDirty()
	s.eng.UpdateData(h, data)
}

// ResetData replaces the page data with data.
func (s *Session) ResetData(data *templatedata.TemplateData) {
	h, ok := s.ready(`reset_data`)
	if !ok {
		return
	}
	s.markDirty()
	s.eng.ResetData(h, data)
}

// ReloadTemplate re-renders the loaded template with new data. Non-nil
// globalProps replace the session's global props.
func (s *Session) ReloadTemplate(data, globalProps *templatedata.TemplateData) {
	h, ok := s.ready(`reload_template`)
	if !ok {
		return
	}
	if globalProps != nil {
		s.mu.Lock()
		s.globalProps = globalProps.DeepClone()
		s.mu.Unlock()
	}
	s.markDirty()
	s.eng.ReloadTemplate(h, data, globalProps)
}

// UpdateGlobalProps merges props into the session's global props and hands
// the engine a copy.
func (s *Session) UpdateGlobalProps(props *templatedata.TemplateData) {
	if props == nil {
		return
	}
	h, ok := s.ready(`update_global_props`)
	if !ok {
		return
	}
	merged, err := s.mergeGlobalProps(props)
	if err != nil {
		s.logger.Err().Err(err).Log(`global props merge failed`)
		return
	}
	s.touch()
	s.eng.UpdateGlobalProps(h, merged)
}

// UpdateMetaData updates data and global props in one engine call. Either
// may be nil.
func (s *Session) UpdateMetaData(data, globalProps *templatedata.TemplateData) {
	h, ok := s.ready(`update_meta_data`)
	if !ok {
		return
	}
	s.emitter.SetInPreload(false)
	var merged *templatedata.TemplateData
	if globalProps != nil {
		var err error
		if merged, err = s.mergeGlobalProps(globalProps); err != nil {
			s.logger.Err().Err(err).Log(`global props merge failed`)
			return
		}
	}
	s.markDirty()
	s.eng.UpdateMetaData(h, data, merged)
}

// GlobalProps returns a copy of the session's global props, or nil.
func (s *Session) GlobalProps() *templatedata.TemplateData {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.globalProps == nil {
		return nil
	}
	return s.globalProps.DeepClone()
}

func (s *Session) mergeGlobalProps(props *templatedata.TemplateData) (*templatedata.TemplateData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.globalProps == nil {
		s.globalProps = templatedata.New()
	}
	if err := s.globalProps.UpdateWith(props); err != nil {
		return nil, err
	}
	return s.globalProps.DeepClone(), nil
}
